package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/utils/idgen"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

const (
	defaultListLimit    = 50
	defaultHistoryLimit = 50
	maxPageLimit        = 200
)

// CharacterLookup is the subset of the character store needed to validate new conversations.
type CharacterLookup interface {
	GetCharacter(ctx context.Context, userID, characterID string) (*character.Character, error)
}

// Service describes the conversation operations exposed over REST.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Conversation, error)
	Get(ctx context.Context, userID, conversationID string) (*Conversation, error)
	List(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	History(ctx context.Context, userID, conversationID string, limit int, cursor string) (*MessagePage, error)
}

type service struct {
	store      Store
	characters CharacterLookup
	log        zerolog.Logger
	now        func() time.Time
}

// NewService wires the conversation service.
func NewService(store Store, characters CharacterLookup, log zerolog.Logger) Service {
	return &service{
		store:      store,
		characters: characters,
		log:        log.With().Str("component", "conversation-service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Conversation, error) {
	if _, err := s.characters.GetCharacter(ctx, input.UserID, input.CharacterID); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "lookup character")
	}

	now := s.now()
	title := input.Title
	if title == "" {
		title = DefaultTitle(now)
	}

	conv := &Conversation{
		ID:            idgen.NewEntityID(),
		UserID:        input.UserID,
		CharacterID:   input.CharacterID,
		Title:         title,
		LastMessageAt: now,
		MessageCount:  0,
		CreatedAt:     now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "create conversation")
	}

	s.log.Info().Str("conversation_id", conv.ID).Msg("conversation created")
	return conv, nil
}

func (s *service) Get(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "get conversation")
	}
	return conv, nil
}

func (s *service) List(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	conversations, err := s.store.ListConversations(ctx, userID, clampLimit(limit, defaultListLimit))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "list conversations")
	}
	return conversations, nil
}

// History returns one page of messages, oldest-first, ending just before cursor.
func (s *service) History(ctx context.Context, userID, conversationID string, limit int, cursorToken string) (*MessagePage, error) {
	if _, err := s.store.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "get conversation")
	}

	cursor, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid cursor", err, "")
	}

	limit = clampLimit(limit, defaultHistoryLimit)
	// One extra row tells us whether an older page exists.
	messages, err := s.store.MessagesBefore(ctx, conversationID, cursor, limit+1)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "list messages")
	}

	page := &MessagePage{}
	if len(messages) > limit {
		page.HasMore = true
		messages = messages[:limit]
	}
	reverse(messages)
	page.Messages = messages
	if page.HasMore && len(messages) > 0 {
		page.NextCursor = CursorFor(messages[0]).Encode()
	}
	return page, nil
}

// IsNotFound reports whether err means the conversation or character is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound) ||
		errors.Is(err, character.ErrCharacterNotFound) ||
		platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound)
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func reverse(messages []*Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
