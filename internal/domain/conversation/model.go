package conversation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConversationNotFound is returned when a conversation does not exist for the requesting user.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrInvalidCursor is returned when a history cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Role tags a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation is a named thread between one user and one character.
// UserID and CharacterID never change after creation.
type Conversation struct {
	ID            string
	UserID        string
	CharacterID   string
	Title         string
	LastMessageAt time.Time
	MessageCount  int
	CreatedAt     time.Time
}

// Message is one immutable turn in a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	Timestamp      time.Time
	Tokens         *int
	Model          string
}

// NewMessage is the input for appending a message to a conversation log.
type NewMessage struct {
	ConversationID string
	Role           Role
	Content        string
	Tokens         *int
	Model          string
}

// CreateInput is the request to open a new conversation.
type CreateInput struct {
	UserID      string
	CharacterID string
	Title       string
}

// MessagePage is one page of history, oldest-first.
type MessagePage struct {
	Messages   []*Message
	HasMore    bool
	NextCursor string
}

// DefaultTitle is used when a conversation is created without a title.
func DefaultTitle(now time.Time) string {
	return fmt.Sprintf("Conversation %s", now.Format("1/2/2006"))
}
