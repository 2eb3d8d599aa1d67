package relay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/janhq/companion-relay/internal/domain/relay"
)

func TestCanTransition(t *testing.T) {
	path := []relay.State{
		relay.StateValidating,
		relay.StateLoading,
		relay.StateRecordingInput,
		relay.StateAssemblingContext,
		relay.StateStreaming,
		relay.StateRecordingOutput,
		relay.StateFinalizing,
		relay.StateCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, relay.CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
		assert.True(t, relay.CanTransition(path[i], relay.StateFailed), "%s -> failed", path[i])
	}

	assert.False(t, relay.CanTransition(relay.StateValidating, relay.StateStreaming))
	assert.False(t, relay.CanTransition(relay.StateStreaming, relay.StateLoading))
	assert.False(t, relay.CanTransition(relay.StateCompleted, relay.StateFailed))
	assert.False(t, relay.CanTransition(relay.StateFailed, relay.StateLoading))
}

func TestUserMessageDurable(t *testing.T) {
	assert.False(t, relay.UserMessageDurable(relay.StateLoading))
	assert.False(t, relay.UserMessageDurable(relay.StateRecordingInput))
	assert.True(t, relay.UserMessageDurable(relay.StateStreaming))
	assert.True(t, relay.UserMessageDurable(relay.StateCompleted))
}
