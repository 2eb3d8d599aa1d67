// Package responses contains HTTP response DTOs for the companion relay.
package responses

import (
	"time"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/domain/conversation"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ConversationResponse is the public shape of a conversation.
type ConversationResponse struct {
	ID            string    `json:"id"`
	CharacterID   string    `json:"characterId"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	MessageCount  int       `json:"messageCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewConversationResponse converts a domain conversation.
func NewConversationResponse(c *conversation.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:            c.ID,
		CharacterID:   c.CharacterID,
		Title:         c.Title,
		LastMessageAt: c.LastMessageAt,
		MessageCount:  c.MessageCount,
		CreatedAt:     c.CreatedAt,
	}
}

// ConversationListResponse wraps a list of conversations.
type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// NewConversationListResponse converts domain conversations.
func NewConversationListResponse(list []*conversation.Conversation) ConversationListResponse {
	out := make([]ConversationResponse, 0, len(list))
	for _, c := range list {
		out = append(out, NewConversationResponse(c))
	}
	return ConversationListResponse{Conversations: out}
}

// MessageResponse is one message of a history page.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Tokens    *int      `json:"tokens,omitempty"`
	Model     string    `json:"model,omitempty"`
}

// MessagePageResponse is one page of history, oldest first.
type MessagePageResponse struct {
	Messages   []MessageResponse `json:"messages"`
	HasMore    bool              `json:"hasMore"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// NewMessagePageResponse converts a domain page.
func NewMessagePageResponse(page *conversation.MessagePage) MessagePageResponse {
	out := make([]MessageResponse, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, MessageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Tokens:    m.Tokens,
			Model:     m.Model,
		})
	}
	return MessagePageResponse{Messages: out, HasMore: page.HasMore, NextCursor: page.NextCursor}
}

// CharacterResponse is the public shape of a character.
type CharacterResponse struct {
	ID                string                      `json:"id"`
	Name              string                      `json:"name"`
	Avatar            string                      `json:"avatar,omitempty"`
	SystemPrompt      string                      `json:"systemPrompt"`
	PersonalityTraits character.PersonalityTraits `json:"personalityTraits"`
	IsPublic          bool                        `json:"isPublic"`
	UsageCount        int                         `json:"usageCount"`
	CreatedAt         time.Time                   `json:"createdAt"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
}

// NewCharacterResponse converts a domain character.
func NewCharacterResponse(c *character.Character) CharacterResponse {
	return CharacterResponse{
		ID:                c.ID,
		Name:              c.Name,
		Avatar:            c.Avatar,
		SystemPrompt:      c.SystemPrompt,
		PersonalityTraits: c.PersonalityTraits,
		IsPublic:          c.IsPublic,
		UsageCount:        c.UsageCount,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// CharacterListResponse wraps a list of characters.
type CharacterListResponse struct {
	Characters []CharacterResponse `json:"characters"`
}

// NewCharacterListResponse converts domain characters.
func NewCharacterListResponse(list []*character.Character) CharacterListResponse {
	out := make([]CharacterResponse, 0, len(list))
	for _, c := range list {
		out = append(out, NewCharacterResponse(c))
	}
	return CharacterListResponse{Characters: out}
}

// ConnectionCountResponse reports how many relay connections are registered.
type ConnectionCountResponse struct {
	Count int    `json:"count"`
	Local int    `json:"local"`
	Node  string `json:"node"`
}

// ConnectionResponse describes one registered connection.
type ConnectionResponse struct {
	ID          string    `json:"id"`
	NodeID      string    `json:"nodeId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// NewConnectionResponse converts a domain connection.
func NewConnectionResponse(c *connection.Connection) ConnectionResponse {
	return ConnectionResponse{ID: c.ID, NodeID: c.NodeID, ConnectedAt: c.ConnectedAt}
}
