package relay_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/companion-relay/internal/domain/relay"
)

func TestFrameWireShapes(t *testing.T) {
	tests := []struct {
		frame relay.Frame
		want  string
	}{
		{relay.TokenFrame("Hi"), `{"type":"token","content":"Hi"}`},
		{relay.DoneFrame("01j9", 12), `{"type":"done","messageId":"01j9","tokens":12}`},
		{relay.ErrorFrame("Conversation not found"), `{"type":"error","error":"Conversation not found"}`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.frame)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(data))
	}

	_, err := json.Marshal(relay.Frame{Type: "bogus"})
	assert.Error(t, err)
}

func TestDecodeInbound(t *testing.T) {
	frame, err := relay.DecodeInbound([]byte(`{"conversationId":"c1","content":"hello","userId":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"}, frame)

	_, err = relay.DecodeInbound([]byte(`not json`))
	assert.Error(t, err)
}
