package conversation

import (
	"context"
	"time"
)

// Store is the durable conversation log.
// TouchConversation is a single atomic update: lastMessageAt = now, messageCount + 1.
type Store interface {
	CreateConversation(ctx context.Context, conversation *Conversation) error
	GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	TouchConversation(ctx context.Context, userID, conversationID string) error

	AppendMessage(ctx context.Context, msg NewMessage) (*Message, error)
	// RecentMessages returns up to limit messages, newest-first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	// MessagesBefore returns up to limit messages strictly older than the cursor position, newest-first.
	// A nil cursor starts from the newest message.
	MessagesBefore(ctx context.Context, conversationID string, cursor *Cursor, limit int) ([]*Message, error)
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
