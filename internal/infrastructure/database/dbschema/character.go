package dbschema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/janhq/companion-relay/internal/domain/character"
)

// Character represents the database schema for characters
type Character struct {
	ID                string     `gorm:"type:varchar(64);primaryKey"`
	UserID            string     `gorm:"type:varchar(128);index:idx_characters_user_created;not null"`
	Name              string     `gorm:"type:varchar(50);not null"`
	Avatar            string     `gorm:"type:text;not null;default:''"`
	SystemPrompt      string     `gorm:"type:text;not null"`
	PersonalityTraits JSONTraits `gorm:"type:jsonb;not null"`
	IsPublic          bool       `gorm:"not null;default:false"`
	UsageCount        int        `gorm:"not null;default:0"`
	CreatedAt         time.Time  `gorm:"index:idx_characters_user_created;not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

// JSONTraits stores personality traits as jsonb.
type JSONTraits character.PersonalityTraits

// Value implements driver.Valuer.
func (t JSONTraits) Value() (driver.Value, error) {
	if t.Interests == nil {
		t.Interests = []string{}
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *JSONTraits) Scan(value interface{}) error {
	if value == nil {
		*t = JSONTraits{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONTraits", value)
	}
	return json.Unmarshal(raw, t)
}

func NewSchemaCharacter(c *character.Character) *Character {
	if c == nil {
		return nil
	}
	return &Character{
		ID:                c.ID,
		UserID:            c.UserID,
		Name:              c.Name,
		Avatar:            c.Avatar,
		SystemPrompt:      c.SystemPrompt,
		PersonalityTraits: JSONTraits(c.PersonalityTraits),
		IsPublic:          c.IsPublic,
		UsageCount:        c.UsageCount,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func (s *Character) EtoD() *character.Character {
	if s == nil {
		return nil
	}
	return &character.Character{
		ID:                s.ID,
		UserID:            s.UserID,
		Name:              s.Name,
		Avatar:            s.Avatar,
		SystemPrompt:      s.SystemPrompt,
		PersonalityTraits: character.PersonalityTraits(s.PersonalityTraits),
		IsPublic:          s.IsPublic,
		UsageCount:        s.UsageCount,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}
