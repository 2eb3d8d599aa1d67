package character

import "context"

// Store persists characters.
type Store interface {
	CreateCharacter(ctx context.Context, character *Character) error
	GetCharacter(ctx context.Context, userID, characterID string) (*Character, error)
	ListCharacters(ctx context.Context, userID string, limit int) ([]*Character, error)
	// UpdateCharacter saves the editable fields of character. The usage counter is not written.
	UpdateCharacter(ctx context.Context, character *Character) error
	DeleteCharacter(ctx context.Context, userID, characterID string) error
	IncrementCharacterUsage(ctx context.Context, userID, characterID string) error
}

// ProfileGenerator turns a free-form description into a character profile.
type ProfileGenerator interface {
	GenerateProfile(ctx context.Context, prompt string) (*GeneratedProfile, error)
}
