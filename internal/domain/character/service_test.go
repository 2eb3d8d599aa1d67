package character_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/infrastructure/store"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

type fakeGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (*character.GeneratedProfile, error)
}

func (f *fakeGenerator) GenerateProfile(ctx context.Context, prompt string) (*character.GeneratedProfile, error) {
	return f.GenerateFunc(ctx, prompt)
}

func TestCreateManualCharacter(t *testing.T) {
	ctx := context.Background()
	svc := character.NewService(store.NewMemoryStore(zerolog.Nop()), nil, zerolog.Nop())

	created, err := svc.Create(ctx, character.CreateInput{
		UserID: "u1",
		Name:   "Rin",
		PersonalityTraits: &character.PersonalityTraits{
			Tone:          character.TonePlayful,
			Interests:     []string{"music", "cats"},
			Background:    "A street musician.",
			SpeakingStyle: "Casual",
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Rin", created.Name)
	assert.Contains(t, created.SystemPrompt, "You are Rin, a playful AI companion.")
	assert.Contains(t, created.SystemPrompt, "Interests: music, cats")

	got, err := svc.Get(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Get(ctx, "u2", created.ID)
	assert.True(t, errors.Is(err, character.ErrCharacterNotFound))
}

func TestCreateCharacterValidation(t *testing.T) {
	svc := character.NewService(store.NewMemoryStore(zerolog.Nop()), nil, zerolog.Nop())

	tests := []struct {
		name  string
		input character.CreateInput
		want  platformerrors.ErrorType
	}{
		{
			name:  "neither prompt nor traits",
			input: character.CreateInput{UserID: "u1", Name: "Rin"},
			want:  platformerrors.ErrorTypeValidation,
		},
		{
			name:  "manual without name",
			input: character.CreateInput{UserID: "u1", PersonalityTraits: &character.PersonalityTraits{Tone: character.ToneCaring}},
			want:  platformerrors.ErrorTypeValidation,
		},
		{
			name:  "unknown tone",
			input: character.CreateInput{UserID: "u1", Name: "Rin", PersonalityTraits: &character.PersonalityTraits{Tone: "grumpy"}},
			want:  platformerrors.ErrorTypeValidation,
		},
		{
			name:  "prompt without generator",
			input: character.CreateInput{UserID: "u1", Prompt: "a cheerful astronaut who loves jazz"},
			want:  platformerrors.ErrorTypeNotImplemented,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, tt.want))
		})
	}
}

func TestCreateCharacterFromPrompt(t *testing.T) {
	gen := &fakeGenerator{GenerateFunc: func(ctx context.Context, prompt string) (*character.GeneratedProfile, error) {
		return &character.GeneratedProfile{
			Name:         "Nova",
			Tone:         "unknown",
			SystemPrompt: "You are Nova, an astronaut.",
		}, nil
	}}
	svc := character.NewService(store.NewMemoryStore(zerolog.Nop()), gen, zerolog.Nop())

	created, err := svc.Create(context.Background(), character.CreateInput{
		UserID: "u1",
		Prompt: "a cheerful astronaut who loves jazz",
	})
	require.NoError(t, err)
	assert.Equal(t, "Nova", created.Name)
	assert.Equal(t, "You are Nova, an astronaut.", created.SystemPrompt)
	assert.Equal(t, character.ToneCaring, created.PersonalityTraits.Tone)
	assert.NotEmpty(t, created.PersonalityTraits.Interests)
}

func TestCreateCharacterGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{GenerateFunc: func(ctx context.Context, prompt string) (*character.GeneratedProfile, error) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "provider down", nil, "")
	}}
	svc := character.NewService(store.NewMemoryStore(zerolog.Nop()), gen, zerolog.Nop())

	_, err := svc.Create(context.Background(), character.CreateInput{UserID: "u1", Prompt: "a cheerful astronaut"})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
}

func TestListCharacters(t *testing.T) {
	ctx := context.Background()
	svc := character.NewService(store.NewMemoryStore(zerolog.Nop()), nil, zerolog.Nop())

	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, character.CreateInput{
			UserID:            "u1",
			Name:              name,
			PersonalityTraits: &character.PersonalityTraits{Tone: character.ToneSerious},
		})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := svc.List(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := svc.List(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func newManualCharacter(t *testing.T, svc character.Service, mem *store.MemoryStore) *character.Character {
	t.Helper()
	created, err := svc.Create(context.Background(), character.CreateInput{
		UserID: "u1",
		Name:   "Rin",
		PersonalityTraits: &character.PersonalityTraits{
			Tone:      character.TonePlayful,
			Interests: []string{"music"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, mem.IncrementCharacterUsage(context.Background(), "u1", created.ID))
	return created
}

func TestUpdateCharacterChangesOnlySuppliedFields(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(zerolog.Nop())
	svc := character.NewService(mem, nil, zerolog.Nop())
	created := newManualCharacter(t, svc, mem)

	name := "  Rin K.  "
	public := true
	updated, err := svc.Update(ctx, character.UpdateInput{UserID: "u1", CharacterID: created.ID, Name: &name, IsPublic: &public})
	require.NoError(t, err)
	assert.Equal(t, "Rin K.", updated.Name)
	assert.True(t, updated.IsPublic)
	assert.Equal(t, created.SystemPrompt, updated.SystemPrompt)
	assert.Equal(t, created.PersonalityTraits, updated.PersonalityTraits)

	got, err := svc.Get(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rin K.", got.Name)
	assert.True(t, got.IsPublic)
	assert.Equal(t, 1, got.UsageCount, "usage counter survives an update")
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
}

func TestUpdateCharacterValidation(t *testing.T) {
	mem := store.NewMemoryStore(zerolog.Nop())
	svc := character.NewService(mem, nil, zerolog.Nop())
	created := newManualCharacter(t, svc, mem)

	blank := "   "
	other := "Other"
	tests := []struct {
		name  string
		input character.UpdateInput
		want  platformerrors.ErrorType
	}{
		{name: "nothing to change", input: character.UpdateInput{UserID: "u1", CharacterID: created.ID}, want: platformerrors.ErrorTypeValidation},
		{name: "blank name", input: character.UpdateInput{UserID: "u1", CharacterID: created.ID, Name: &blank}, want: platformerrors.ErrorTypeValidation},
		{name: "blank system prompt", input: character.UpdateInput{UserID: "u1", CharacterID: created.ID, SystemPrompt: &blank}, want: platformerrors.ErrorTypeValidation},
		{name: "unknown tone", input: character.UpdateInput{UserID: "u1", CharacterID: created.ID, PersonalityTraits: &character.PersonalityTraits{Tone: "grumpy"}}, want: platformerrors.ErrorTypeValidation},
		{name: "other user", input: character.UpdateInput{UserID: "u2", CharacterID: created.ID, Name: &other}, want: platformerrors.ErrorTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, tt.want))
		})
	}
}

func TestDeleteCharacter(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(zerolog.Nop())
	svc := character.NewService(mem, nil, zerolog.Nop())
	created := newManualCharacter(t, svc, mem)

	err := svc.Delete(ctx, "u2", created.ID)
	assert.True(t, errors.Is(err, character.ErrCharacterNotFound))

	require.NoError(t, svc.Delete(ctx, "u1", created.ID))
	_, err = svc.Get(ctx, "u1", created.ID)
	assert.True(t, errors.Is(err, character.ErrCharacterNotFound))

	err = svc.Delete(ctx, "u1", created.ID)
	assert.True(t, errors.Is(err, character.ErrCharacterNotFound))
}
