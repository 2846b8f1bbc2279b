package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Chapter is one ordered narrative unit. OrderIndex is the only axis used for
// spoiler cutoffs; ledger rows point at the chapter id so a renumbering of
// order_index never has to touch them.
type Chapter struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderIndex  int        `gorm:"column:order_index;not null;uniqueIndex" json:"order_index"`
	ExternalID  string     `gorm:"column:external_id;index" json:"external_id"`
	Title       string     `gorm:"column:title" json:"title,omitempty"`
	URL         string     `gorm:"column:url" json:"url,omitempty"`
	WordCount   int        `gorm:"column:word_count;not null" json:"word_count"`
	PublishedAt *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Chapter) TableName() string { return "chapters" }
