package character

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/utils/idgen"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

const defaultListLimit = 50

// Service describes character management used by the REST surface.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Character, error)
	Get(ctx context.Context, userID, characterID string) (*Character, error)
	List(ctx context.Context, userID string, limit int) ([]*Character, error)
	Update(ctx context.Context, input UpdateInput) (*Character, error)
	Delete(ctx context.Context, userID, characterID string) error
}

type service struct {
	store     Store
	generator ProfileGenerator
	log       zerolog.Logger
}

// NewService wires the character service. generator may be nil, in which case
// prompt-based creation is rejected.
func NewService(store Store, generator ProfileGenerator, log zerolog.Logger) Service {
	return &service{
		store:     store,
		generator: generator,
		log:       log.With().Str("component", "character-service").Logger(),
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Character, error) {
	var (
		name   string
		prompt string
		traits PersonalityTraits
	)

	switch {
	case strings.TrimSpace(input.Prompt) != "":
		if s.generator == nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotImplemented,
				"character generation is not available", nil, "")
		}
		profile, err := s.generator.GenerateProfile(ctx, input.Prompt)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "generate character profile")
		}
		normalizeProfile(profile)
		name = profile.Name
		if strings.TrimSpace(input.Name) != "" {
			name = input.Name
		}
		prompt = profile.SystemPrompt
		traits = PersonalityTraits{
			Tone:          profile.Tone,
			Interests:     profile.Interests,
			Background:    profile.Background,
			SpeakingStyle: profile.SpeakingStyle,
		}
	case input.PersonalityTraits != nil:
		if strings.TrimSpace(input.Name) == "" {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"name is required when creating character manually", nil, "")
		}
		if !input.PersonalityTraits.Tone.Valid() {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				fmt.Sprintf("unsupported tone %q", input.PersonalityTraits.Tone), nil, "")
		}
		name = input.Name
		traits = *input.PersonalityTraits
		prompt = BuildSystemPrompt(name, traits)
	default:
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"either prompt or personalityTraits must be provided", nil, "")
	}

	now := time.Now().UTC()
	character := &Character{
		ID:                idgen.NewEntityID(),
		UserID:            input.UserID,
		Name:              name,
		SystemPrompt:      prompt,
		PersonalityTraits: traits,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.CreateCharacter(ctx, character); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "create character")
	}

	s.log.Info().Str("character_id", character.ID).Msg("character created")
	return character, nil
}

func (s *service) Get(ctx context.Context, userID, characterID string) (*Character, error) {
	character, err := s.store.GetCharacter(ctx, userID, characterID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "get character")
	}
	return character, nil
}

func (s *service) List(ctx context.Context, userID string, limit int) ([]*Character, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	characters, err := s.store.ListCharacters(ctx, userID, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "list characters")
	}
	return characters, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*Character, error) {
	if input.Empty() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"no fields to update", nil, "")
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"name must not be empty", nil, "")
	}
	if input.SystemPrompt != nil && strings.TrimSpace(*input.SystemPrompt) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"systemPrompt must not be empty", nil, "")
	}
	if input.PersonalityTraits != nil && !input.PersonalityTraits.Tone.Valid() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("unsupported tone %q", input.PersonalityTraits.Tone), nil, "")
	}

	character, err := s.store.GetCharacter(ctx, input.UserID, input.CharacterID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "get character")
	}

	if input.Name != nil {
		character.Name = strings.TrimSpace(*input.Name)
	}
	if input.Avatar != nil {
		character.Avatar = *input.Avatar
	}
	if input.SystemPrompt != nil {
		character.SystemPrompt = *input.SystemPrompt
	}
	if input.PersonalityTraits != nil {
		character.PersonalityTraits = *input.PersonalityTraits
	}
	if input.IsPublic != nil {
		character.IsPublic = *input.IsPublic
	}
	character.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateCharacter(ctx, character); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "update character")
	}

	s.log.Info().Str("character_id", character.ID).Msg("character updated")
	return character, nil
}

// Delete removes the character. Conversations that reference it stay readable,
// but new exchanges on them fail with a not-found error.
func (s *service) Delete(ctx context.Context, userID, characterID string) error {
	if err := s.store.DeleteCharacter(ctx, userID, characterID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "delete character")
	}
	s.log.Info().Str("character_id", characterID).Msg("character deleted")
	return nil
}

// BuildSystemPrompt renders the roleplay instructions for a manually defined character.
func BuildSystemPrompt(name string, traits PersonalityTraits) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s AI companion.\n\n", name, traits.Tone)
	fmt.Fprintf(&b, "Background: %s\n", traits.Background)
	fmt.Fprintf(&b, "Interests: %s\n", strings.Join(traits.Interests, ", "))
	fmt.Fprintf(&b, "Speaking Style: %s\n\n", traits.SpeakingStyle)
	b.WriteString("Instructions:\n")
	b.WriteString("- Stay in character at all times\n")
	b.WriteString("- Be engaging and emotionally responsive\n")
	b.WriteString("- Remember context from this conversation\n")
	b.WriteString("- Keep responses concise (1-3 paragraphs unless asked for more)")
	return b.String()
}

// normalizeProfile fills gaps left by the generator.
func normalizeProfile(p *GeneratedProfile) {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "AI Companion"
	}
	if !p.Tone.Valid() {
		p.Tone = ToneCaring
	}
	if strings.TrimSpace(p.Background) == "" {
		p.Background = "A friendly AI companion."
	}
	if len(p.Interests) == 0 {
		p.Interests = []string{"conversation", "helping people"}
	}
	if strings.TrimSpace(p.SpeakingStyle) == "" {
		p.SpeakingStyle = "Friendly and supportive"
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		p.SystemPrompt = fmt.Sprintf("You are %s, a friendly AI companion.", p.Name)
	}
}
