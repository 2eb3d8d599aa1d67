package relay

import (
	"context"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/conversation"
)

// Store is the slice of the conversation and character stores an exchange touches.
type Store interface {
	GetConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error)
	GetCharacter(ctx context.Context, userID, characterID string) (*character.Character, error)
	AppendMessage(ctx context.Context, msg conversation.NewMessage) (*conversation.Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*conversation.Message, error)
	TouchConversation(ctx context.Context, userID, conversationID string) error
	IncrementCharacterUsage(ctx context.Context, userID, characterID string) error
}

// Sender delivers outbound frames to a registered connection.
// Implementations return an error wrapping ErrDeliveryFailed when the connection is gone.
type Sender interface {
	Send(ctx context.Context, connectionID string, frame Frame) error
}

// Origin identifies where an inbound frame came from.
type Origin struct {
	ConnectionID string
	// AuthenticatedUserID is empty when authentication is disabled.
	AuthenticatedUserID string
}
