package relay

import (
	"encoding/json"
	"fmt"
)

// InboundFrame is the chat frame a client sends over its relay connection.
type InboundFrame struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
}

// FrameType tags an outbound frame.
type FrameType string

const (
	FrameToken FrameType = "token"
	FrameDone  FrameType = "done"
	FrameError FrameType = "error"
)

// Frame is one outbound message. Only the fields belonging to Type are encoded.
type Frame struct {
	Type      FrameType
	Content   string
	MessageID string
	Tokens    int
	Error     string
}

// TokenFrame carries one text increment.
func TokenFrame(content string) Frame {
	return Frame{Type: FrameToken, Content: content}
}

// DoneFrame terminates a successful exchange.
func DoneFrame(messageID string, tokens int) Frame {
	return Frame{Type: FrameDone, MessageID: messageID, Tokens: tokens}
}

// ErrorFrame terminates a failed exchange.
func ErrorFrame(message string) Frame {
	return Frame{Type: FrameError, Error: message}
}

type tokenWire struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content"`
}

type doneWire struct {
	Type      FrameType `json:"type"`
	MessageID string    `json:"messageId"`
	Tokens    int       `json:"tokens"`
}

type errorWire struct {
	Type  FrameType `json:"type"`
	Error string    `json:"error"`
}

// MarshalJSON encodes the frame in its wire shape.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameToken:
		return json.Marshal(tokenWire{Type: f.Type, Content: f.Content})
	case FrameDone:
		return json.Marshal(doneWire{Type: f.Type, MessageID: f.MessageID, Tokens: f.Tokens})
	case FrameError:
		return json.Marshal(errorWire{Type: f.Type, Error: f.Error})
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// UnmarshalJSON decodes any of the outbound wire shapes.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      FrameType `json:"type"`
		Content   string    `json:"content"`
		MessageID string    `json:"messageId"`
		Tokens    int       `json:"tokens"`
		Error     string    `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Frame(raw)
	return nil
}

// DecodeInbound parses a raw client payload.
func DecodeInbound(payload []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return InboundFrame{}, err
	}
	return frame, nil
}
