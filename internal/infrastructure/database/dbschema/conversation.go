package dbschema

import (
	"time"

	"github.com/janhq/companion-relay/internal/domain/conversation"
)

// Conversation represents the database schema for conversations
type Conversation struct {
	ID            string    `gorm:"type:varchar(64);primaryKey"`
	UserID        string    `gorm:"type:varchar(128);index:idx_conversations_user_last_message;not null"`
	CharacterID   string    `gorm:"type:varchar(64);not null"`
	Title         string    `gorm:"type:varchar(100);not null"`
	LastMessageAt time.Time `gorm:"index:idx_conversations_user_last_message;not null"`
	MessageCount  int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null"`
}

// Message represents the database schema for messages
type Message struct {
	ID             string    `gorm:"type:varchar(64);primaryKey"`
	ConversationID string    `gorm:"type:varchar(64);index:idx_messages_conversation_order;not null"`
	Role           string    `gorm:"type:varchar(16);not null"`
	Content        string    `gorm:"type:text;not null"`
	Tokens         *int      `gorm:"type:integer"`
	Model          string    `gorm:"type:varchar(128);not null;default:''"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_order;not null"`
}

func NewSchemaConversation(c *conversation.Conversation) *Conversation {
	if c == nil {
		return nil
	}
	return &Conversation{
		ID:            c.ID,
		UserID:        c.UserID,
		CharacterID:   c.CharacterID,
		Title:         c.Title,
		LastMessageAt: c.LastMessageAt,
		MessageCount:  c.MessageCount,
		CreatedAt:     c.CreatedAt,
	}
}

func (s *Conversation) EtoD() *conversation.Conversation {
	if s == nil {
		return nil
	}
	return &conversation.Conversation{
		ID:            s.ID,
		UserID:        s.UserID,
		CharacterID:   s.CharacterID,
		Title:         s.Title,
		LastMessageAt: s.LastMessageAt,
		MessageCount:  s.MessageCount,
		CreatedAt:     s.CreatedAt,
	}
}

func (s *Message) EtoD() *conversation.Message {
	if s == nil {
		return nil
	}
	return &conversation.Message{
		ID:             s.ID,
		ConversationID: s.ConversationID,
		Role:           conversation.Role(s.Role),
		Content:        s.Content,
		Timestamp:      s.CreatedAt,
		Tokens:         s.Tokens,
		Model:          s.Model,
	}
}
