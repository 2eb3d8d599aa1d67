// Package requests contains HTTP request DTOs for the companion relay.
package requests

import (
	"github.com/janhq/companion-relay/internal/domain/character"
)

// CreateConversationRequest opens a conversation with one of the caller's characters.
type CreateConversationRequest struct {
	CharacterID string `json:"characterId" binding:"required"`
	Title       string `json:"title" binding:"max=100"`
}

// ListQuery is the common limit query parameter.
type ListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// HistoryQuery pages through a conversation's messages.
type HistoryQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Cursor string `form:"cursor"`
}

// PersonalityTraits are the manual character traits.
type PersonalityTraits struct {
	Tone          string   `json:"tone" binding:"required,oneof=playful serious romantic professional caring adventurous"`
	Interests     []string `json:"interests" binding:"max=10,dive,max=100"`
	Background    string   `json:"background" binding:"max=500"`
	SpeakingStyle string   `json:"speakingStyle" binding:"max=200"`
}

// CreateCharacterRequest creates a character from traits or from a free-form prompt.
type CreateCharacterRequest struct {
	Name              string             `json:"name" binding:"omitempty,min=1,max=50"`
	Prompt            string             `json:"prompt" binding:"omitempty,min=10,max=1000"`
	PersonalityTraits *PersonalityTraits `json:"personalityTraits"`
}

// ToInput converts the request into the domain input.
func (r CreateCharacterRequest) ToInput(userID string) character.CreateInput {
	input := character.CreateInput{
		UserID: userID,
		Name:   r.Name,
		Prompt: r.Prompt,
	}
	if r.PersonalityTraits != nil {
		input.PersonalityTraits = &character.PersonalityTraits{
			Tone:          character.Tone(r.PersonalityTraits.Tone),
			Interests:     r.PersonalityTraits.Interests,
			Background:    r.PersonalityTraits.Background,
			SpeakingStyle: r.PersonalityTraits.SpeakingStyle,
		}
	}
	return input
}

// UpdateCharacterRequest patches a character. Omitted fields keep their value.
type UpdateCharacterRequest struct {
	Name              *string            `json:"name" binding:"omitempty,min=1,max=50"`
	Avatar            *string            `json:"avatar" binding:"omitempty,max=2048"`
	SystemPrompt      *string            `json:"systemPrompt" binding:"omitempty,min=1,max=8000"`
	PersonalityTraits *PersonalityTraits `json:"personalityTraits"`
	IsPublic          *bool              `json:"isPublic"`
}

// ToInput converts the request into the domain input.
func (r UpdateCharacterRequest) ToInput(userID, characterID string) character.UpdateInput {
	input := character.UpdateInput{
		UserID:       userID,
		CharacterID:  characterID,
		Name:         r.Name,
		Avatar:       r.Avatar,
		SystemPrompt: r.SystemPrompt,
		IsPublic:     r.IsPublic,
	}
	if r.PersonalityTraits != nil {
		input.PersonalityTraits = &character.PersonalityTraits{
			Tone:          character.Tone(r.PersonalityTraits.Tone),
			Interests:     r.PersonalityTraits.Interests,
			Background:    r.PersonalityTraits.Background,
			SpeakingStyle: r.PersonalityTraits.SpeakingStyle,
		}
	}
	return input
}
