package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureID(t *testing.T) {
	id, err := GenerateSecureID("conn", 16)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "conn_"))
	assert.Len(t, strings.TrimPrefix(id, "conn_"), 16)
	for _, r := range strings.TrimPrefix(id, "conn_") {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z'), "unexpected rune %q", r)
	}
}

func TestNewMessageIDIsSortable(t *testing.T) {
	prev := NewMessageID()
	for i := 0; i < 100; i++ {
		next := NewMessageID()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestNewEntityID(t *testing.T) {
	_, err := uuid.Parse(NewEntityID())
	assert.NoError(t, err)
}
