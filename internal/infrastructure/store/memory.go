package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/utils/idgen"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// MemoryStore is a mutex-based in-memory conversation store for development and tests.
// Thread-safe via sync.RWMutex. Returned values are copies.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation.Conversation
	characters    map[string]*character.Character
	messages      map[string][]*conversation.Message // conversation ID -> ascending log
	now           func() time.Time
	log           zerolog.Logger
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(log zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*conversation.Conversation),
		characters:    make(map[string]*character.Character),
		messages:      make(map[string][]*conversation.Message),
		now:           func() time.Time { return time.Now().UTC() },
		log:           log.With().Str("component", "memory-store").Logger(),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// CreateCharacter stores a new character.
func (s *MemoryStore) CreateCharacter(ctx context.Context, c *character.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.characters[c.ID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "character already exists", nil, "")
	}
	cp := *c
	cp.PersonalityTraits.Interests = append([]string(nil), c.PersonalityTraits.Interests...)
	s.characters[c.ID] = &cp
	return nil
}

// GetCharacter retrieves a character owned by userID.
func (s *MemoryStore) GetCharacter(ctx context.Context, userID, characterID string) (*character.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.characters[characterID]
	if !ok || c.UserID != userID {
		return nil, characterNotFound(ctx)
	}
	cp := *c
	return &cp, nil
}

// ListCharacters returns the user's characters, newest first.
func (s *MemoryStore) ListCharacters(ctx context.Context, userID string, limit int) ([]*character.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*character.Character, 0)
	for _, c := range s.characters {
		if c.UserID == userID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateCharacter writes the editable fields of c.
func (s *MemoryStore) UpdateCharacter(ctx context.Context, c *character.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.characters[c.ID]
	if !ok || cur.UserID != c.UserID {
		return characterNotFound(ctx)
	}
	cur.Name = c.Name
	cur.Avatar = c.Avatar
	cur.SystemPrompt = c.SystemPrompt
	cur.PersonalityTraits = c.PersonalityTraits
	cur.PersonalityTraits.Interests = append([]string(nil), c.PersonalityTraits.Interests...)
	cur.IsPublic = c.IsPublic
	cur.UpdatedAt = c.UpdatedAt
	return nil
}

// DeleteCharacter removes a character owned by userID.
func (s *MemoryStore) DeleteCharacter(ctx context.Context, userID, characterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok || c.UserID != userID {
		return characterNotFound(ctx)
	}
	delete(s.characters, characterID)
	return nil
}

// IncrementCharacterUsage atomically bumps the usage counter.
func (s *MemoryStore) IncrementCharacterUsage(ctx context.Context, userID, characterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok || c.UserID != userID {
		return characterNotFound(ctx)
	}
	c.UsageCount++
	c.UpdatedAt = s.now()
	return nil
}

// CreateConversation stores a new conversation.
func (s *MemoryStore) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "conversation already exists", nil, "")
	}
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

// GetConversation retrieves a conversation owned by userID.
func (s *MemoryStore) GetConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, conversationNotFound(ctx)
	}
	cp := *conv
	return &cp, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *MemoryStore) ListConversations(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*conversation.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			cp := *conv
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastMessageAt.After(result[j].LastMessageAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// TouchConversation sets lastMessageAt to now and increments messageCount in one step.
func (s *MemoryStore) TouchConversation(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return conversationNotFound(ctx)
	}
	now := s.now()
	if now.After(conv.LastMessageAt) {
		conv.LastMessageAt = now
	}
	conv.MessageCount++
	return nil
}

// AppendMessage adds a message to the conversation log. Timestamps are strictly
// increasing within a conversation.
func (s *MemoryStore) AppendMessage(ctx context.Context, in conversation.NewMessage) (*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	log := s.messages[in.ConversationID]
	if n := len(log); n > 0 && !ts.After(log[n-1].Timestamp) {
		ts = log[n-1].Timestamp.Add(time.Microsecond)
	}

	msg := &conversation.Message{
		ID:             idgen.NewMessageID(),
		ConversationID: in.ConversationID,
		Role:           in.Role,
		Content:        in.Content,
		Timestamp:      ts,
		Model:          in.Model,
	}
	if in.Tokens != nil {
		tokens := *in.Tokens
		msg.Tokens = &tokens
	}
	s.messages[in.ConversationID] = append(log, msg)

	cp := *msg
	return &cp, nil
}

// RecentMessages returns up to limit messages, newest-first.
func (s *MemoryStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*conversation.Message, error) {
	return s.MessagesBefore(ctx, conversationID, nil, limit)
}

// MessagesBefore returns up to limit messages older than cursor, newest-first.
func (s *MemoryStore) MessagesBefore(ctx context.Context, conversationID string, cursor *conversation.Cursor, limit int) ([]*conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[conversationID]
	result := make([]*conversation.Message, 0, limit)
	for i := len(log) - 1; i >= 0 && len(result) < limit; i-- {
		if cursor != nil && !cursor.Before(log[i]) {
			continue
		}
		cp := *log[i]
		result = append(result, &cp)
	}
	return result, nil
}

// DeleteMessagesBefore drops messages older than cutoff.
func (s *MemoryStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, log := range s.messages {
		kept := log[:0]
		for _, msg := range log {
			if msg.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, msg)
		}
		s.messages[id] = kept
	}
	if deleted > 0 {
		s.log.Debug().Int64("deleted", deleted).Msg("expired messages removed")
	}
	return deleted, nil
}

func conversationNotFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"conversation not found", conversation.ErrConversationNotFound, "")
}

func characterNotFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"character not found", character.ErrCharacterNotFound, "")
}
