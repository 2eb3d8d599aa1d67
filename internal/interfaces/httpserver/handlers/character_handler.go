package handlers

import (
	"context"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/requests"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/responses"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// CharacterHandler handles character REST requests.
type CharacterHandler struct {
	service character.Service
}

// NewCharacterHandler creates a character handler.
func NewCharacterHandler(service character.Service) *CharacterHandler {
	return &CharacterHandler{service: service}
}

// CreateCharacter creates a character manually or from a prompt.
func (h *CharacterHandler) CreateCharacter(ctx context.Context, userID string, req requests.CreateCharacterRequest) (*responses.CharacterResponse, error) {
	created, err := h.service.Create(ctx, req.ToInput(userID))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create character")
	}
	resp := responses.NewCharacterResponse(created)
	return &resp, nil
}

// ListCharacters returns the caller's characters.
func (h *CharacterHandler) ListCharacters(ctx context.Context, userID string, query requests.ListQuery) (*responses.CharacterListResponse, error) {
	list, err := h.service.List(ctx, userID, query.Limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list characters")
	}
	resp := responses.NewCharacterListResponse(list)
	return &resp, nil
}

// GetCharacter returns one character.
func (h *CharacterHandler) GetCharacter(ctx context.Context, userID, characterID string) (*responses.CharacterResponse, error) {
	found, err := h.service.Get(ctx, userID, characterID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get character")
	}
	resp := responses.NewCharacterResponse(found)
	return &resp, nil
}

// UpdateCharacter patches the supplied fields of a character.
func (h *CharacterHandler) UpdateCharacter(ctx context.Context, userID, characterID string, req requests.UpdateCharacterRequest) (*responses.CharacterResponse, error) {
	updated, err := h.service.Update(ctx, req.ToInput(userID, characterID))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to update character")
	}
	resp := responses.NewCharacterResponse(updated)
	return &resp, nil
}

// DeleteCharacter removes a character.
func (h *CharacterHandler) DeleteCharacter(ctx context.Context, userID, characterID string) error {
	if err := h.service.Delete(ctx, userID, characterID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to delete character")
	}
	return nil
}
