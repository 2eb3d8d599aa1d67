package character

import (
	"errors"
	"time"
)

// ErrCharacterNotFound is returned when a character does not exist for the requesting user.
var ErrCharacterNotFound = errors.New("character not found")

// Tone is the dominant personality tone of a character.
type Tone string

const (
	TonePlayful      Tone = "playful"
	ToneSerious      Tone = "serious"
	ToneRomantic     Tone = "romantic"
	ToneProfessional Tone = "professional"
	ToneCaring       Tone = "caring"
	ToneAdventurous  Tone = "adventurous"
)

// Valid reports whether the tone is one of the supported values.
func (t Tone) Valid() bool {
	switch t {
	case TonePlayful, ToneSerious, ToneRomantic, ToneProfessional, ToneCaring, ToneAdventurous:
		return true
	}
	return false
}

// PersonalityTraits describe how a character behaves.
type PersonalityTraits struct {
	Tone          Tone     `json:"tone"`
	Interests     []string `json:"interests"`
	Background    string   `json:"background"`
	SpeakingStyle string   `json:"speakingStyle"`
}

// Character is an AI persona owned by a user.
type Character struct {
	ID                string
	UserID            string
	Name              string
	Avatar            string
	SystemPrompt      string
	PersonalityTraits PersonalityTraits
	IsPublic          bool
	UsageCount        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GeneratedProfile is a character profile produced by the completion provider from a free-form prompt.
type GeneratedProfile struct {
	Name          string   `json:"name"`
	Tone          Tone     `json:"tone"`
	Background    string   `json:"background"`
	Interests     []string `json:"interests"`
	SpeakingStyle string   `json:"speakingStyle"`
	SystemPrompt  string   `json:"systemPrompt"`
}

// CreateInput is the request to create a character either manually or from a prompt.
type CreateInput struct {
	UserID            string
	Name              string
	Prompt            string
	PersonalityTraits *PersonalityTraits
}

// UpdateInput changes the supplied fields of a character. Nil fields are left untouched.
type UpdateInput struct {
	UserID            string
	CharacterID       string
	Name              *string
	Avatar            *string
	SystemPrompt      *string
	PersonalityTraits *PersonalityTraits
	IsPublic          *bool
}

// Empty reports whether the input changes nothing.
func (in UpdateInput) Empty() bool {
	return in.Name == nil && in.Avatar == nil && in.SystemPrompt == nil && in.PersonalityTraits == nil && in.IsPublic == nil
}
