package chatrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/infrastructure/database"
	"github.com/janhq/companion-relay/internal/infrastructure/database/dbschema"
	"github.com/janhq/companion-relay/internal/utils/idgen"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// Repository is the postgres conversation and character store.
type Repository struct {
	db *gorm.DB
}

var (
	_ conversation.Store = (*Repository)(nil)
	_ character.Store    = (*Repository)(nil)
)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return database.Ping(ctx, r.db)
}

// CreateCharacter implements character.Store.
func (r *Repository) CreateCharacter(ctx context.Context, c *character.Character) error {
	model := dbschema.NewSchemaCharacter(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create character")
	}
	return nil
}

// GetCharacter implements character.Store.
func (r *Repository) GetCharacter(ctx context.Context, userID, characterID string) (*character.Character, error) {
	var row dbschema.Character
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", characterID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, characterNotFound(ctx)
	}
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find character")
	}
	return row.EtoD(), nil
}

// ListCharacters implements character.Store.
func (r *Repository) ListCharacters(ctx context.Context, userID string, limit int) ([]*character.Character, error) {
	var rows []dbschema.Character
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list characters")
	}

	result := make([]*character.Character, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].EtoD())
	}
	return result, nil
}

// UpdateCharacter implements character.Store.
func (r *Repository) UpdateCharacter(ctx context.Context, c *character.Character) error {
	res := r.db.WithContext(ctx).
		Model(&dbschema.Character{}).
		Where("id = ? AND user_id = ?", c.ID, c.UserID).
		Updates(map[string]any{
			"name":               c.Name,
			"avatar":             c.Avatar,
			"system_prompt":      c.SystemPrompt,
			"personality_traits": dbschema.JSONTraits(c.PersonalityTraits),
			"is_public":          c.IsPublic,
			"updated_at":         c.UpdatedAt,
		})
	if res.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, "failed to update character")
	}
	if res.RowsAffected == 0 {
		return characterNotFound(ctx)
	}
	return nil
}

// DeleteCharacter implements character.Store.
func (r *Repository) DeleteCharacter(ctx context.Context, userID, characterID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", characterID, userID).
		Delete(&dbschema.Character{})
	if res.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, "failed to delete character")
	}
	if res.RowsAffected == 0 {
		return characterNotFound(ctx)
	}
	return nil
}

// IncrementCharacterUsage implements character.Store as one UPDATE.
func (r *Repository) IncrementCharacterUsage(ctx context.Context, userID, characterID string) error {
	res := r.db.WithContext(ctx).
		Model(&dbschema.Character{}).
		Where("id = ? AND user_id = ?", characterID, userID).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + ?", 1),
			"updated_at":  gorm.Expr("now()"),
		})
	if res.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, "failed to increment character usage")
	}
	if res.RowsAffected == 0 {
		return characterNotFound(ctx)
	}
	return nil
}

// CreateConversation implements conversation.Store.
func (r *Repository) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	model := dbschema.NewSchemaConversation(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create conversation")
	}
	return nil
}

// GetConversation implements conversation.Store.
func (r *Repository) GetConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error) {
	var row dbschema.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, conversationNotFound(ctx)
	}
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find conversation")
	}
	return row.EtoD(), nil
}

// ListConversations implements conversation.Store.
func (r *Repository) ListConversations(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	var rows []dbschema.Conversation
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("last_message_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list conversations")
	}

	result := make([]*conversation.Conversation, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].EtoD())
	}
	return result, nil
}

// TouchConversation implements conversation.Store as one UPDATE.
func (r *Repository) TouchConversation(ctx context.Context, userID, conversationID string) error {
	res := r.db.WithContext(ctx).
		Model(&dbschema.Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + ?", 1),
			"last_message_at": gorm.Expr("GREATEST(last_message_at, clock_timestamp())"),
		})
	if res.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, "failed to touch conversation")
	}
	if res.RowsAffected == 0 {
		return conversationNotFound(ctx)
	}
	return nil
}

// appendMessageSQL stamps the row with a time strictly after the newest message in the conversation.
const appendMessageSQL = `
INSERT INTO companion_relay.messages (id, conversation_id, role, content, tokens, model, created_at)
VALUES (?, ?, ?, ?, ?, ?, GREATEST(
	clock_timestamp(),
	COALESCE(
		(SELECT MAX(created_at) FROM companion_relay.messages WHERE conversation_id = ?),
		'-infinity'::timestamptz
	) + interval '1 microsecond'
))
RETURNING id, conversation_id, role, content, tokens, model, created_at`

// AppendMessage implements conversation.Store.
func (r *Repository) AppendMessage(ctx context.Context, in conversation.NewMessage) (*conversation.Message, error) {
	var row dbschema.Message
	err := r.db.WithContext(ctx).
		Raw(appendMessageSQL,
			idgen.NewMessageID(), in.ConversationID, string(in.Role), in.Content, in.Tokens, in.Model,
			in.ConversationID).
		Scan(&row).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to append message")
	}
	return row.EtoD(), nil
}

// RecentMessages implements conversation.Store.
func (r *Repository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*conversation.Message, error) {
	return r.MessagesBefore(ctx, conversationID, nil, limit)
}

// MessagesBefore implements conversation.Store.
func (r *Repository) MessagesBefore(ctx context.Context, conversationID string, cursor *conversation.Cursor, limit int) ([]*conversation.Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID)
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.Timestamp, cursor.MessageID)
	}

	var rows []dbschema.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load messages")
	}

	result := make([]*conversation.Message, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].EtoD())
	}
	return result, nil
}

// DeleteMessagesBefore implements conversation.Store.
func (r *Repository) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&dbschema.Message{})
	if res.Error != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, "failed to delete expired messages")
	}
	return res.RowsAffected, nil
}

func conversationNotFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"conversation not found", conversation.ErrConversationNotFound, "")
}

func characterNotFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"character not found", character.ErrCharacterNotFound, "")
}
