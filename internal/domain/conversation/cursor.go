package conversation

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Cursor marks a position in a conversation log by its ordering key.
type Cursor struct {
	Timestamp time.Time `json:"ts"`
	MessageID string    `json:"id"`
}

// CursorFor returns the cursor positioned at msg.
func CursorFor(msg *Message) *Cursor {
	return &Cursor{Timestamp: msg.Timestamp, MessageID: msg.ID}
}

// Encode renders the cursor as an opaque URL-safe token.
func (c *Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by Encode. An empty token yields a nil cursor.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.MessageID == "" || c.Timestamp.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// Before reports whether msg sorts strictly before the cursor position.
func (c *Cursor) Before(msg *Message) bool {
	if msg.Timestamp.Equal(c.Timestamp) {
		return msg.ID < c.MessageID
	}
	return msg.Timestamp.Before(c.Timestamp)
}
