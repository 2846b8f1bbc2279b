package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Character is created outside the ledger core and only referenced by it.
type Character struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string            `gorm:"column:name;not null" json:"name"`
	NormalizedName string            `gorm:"column:normalized_name;not null;uniqueIndex" json:"-"`
	Species        string            `gorm:"column:species" json:"species,omitempty"`
	Aliases        []*CharacterAlias `gorm:"foreignKey:CharacterID" json:"aliases,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (Character) TableName() string { return "characters" }

type CharacterAlias struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	CharacterID     uuid.UUID `gorm:"type:uuid;column:character_id;not null;index" json:"-"`
	Alias           string    `gorm:"column:alias;not null" json:"alias"`
	NormalizedAlias string    `gorm:"column:normalized_alias;not null;uniqueIndex" json:"-"`
	CreatedAt       time.Time `gorm:"not null" json:"-"`
}

func (CharacterAlias) TableName() string { return "character_aliases" }

// Names returns the canonical name followed by every alias.
func (c *Character) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Aliases)+1)
	out = append(out, c.Name)
	for _, a := range c.Aliases {
		if a != nil && a.Alias != "" {
			out = append(out, a.Alias)
		}
	}
	return out
}
