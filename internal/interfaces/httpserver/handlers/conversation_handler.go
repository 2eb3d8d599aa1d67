package handlers

import (
	"context"

	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/requests"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/responses"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// ConversationHandler handles conversation REST requests.
type ConversationHandler struct {
	service conversation.Service
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(service conversation.Service) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// CreateConversation opens a conversation with one of the caller's characters.
func (h *ConversationHandler) CreateConversation(ctx context.Context, userID string, req requests.CreateConversationRequest) (*responses.ConversationResponse, error) {
	conv, err := h.service.Create(ctx, conversation.CreateInput{
		UserID:      userID,
		CharacterID: req.CharacterID,
		Title:       req.Title,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create conversation")
	}
	resp := responses.NewConversationResponse(conv)
	return &resp, nil
}

// ListConversations returns the caller's conversations, most recently active first.
func (h *ConversationHandler) ListConversations(ctx context.Context, userID string, query requests.ListQuery) (*responses.ConversationListResponse, error) {
	list, err := h.service.List(ctx, userID, query.Limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list conversations")
	}
	resp := responses.NewConversationListResponse(list)
	return &resp, nil
}

// GetConversation returns one conversation.
func (h *ConversationHandler) GetConversation(ctx context.Context, userID, conversationID string) (*responses.ConversationResponse, error) {
	conv, err := h.service.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get conversation")
	}
	resp := responses.NewConversationResponse(conv)
	return &resp, nil
}

// ListMessages returns one page of chat history.
func (h *ConversationHandler) ListMessages(ctx context.Context, userID, conversationID string, query requests.HistoryQuery) (*responses.MessagePageResponse, error) {
	page, err := h.service.History(ctx, userID, conversationID, query.Limit, query.Cursor)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list messages")
	}
	resp := responses.NewMessagePageResponse(page)
	return &resp, nil
}
