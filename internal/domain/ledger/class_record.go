package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ClassRecord is a character holding a class from ChapterID until
// EndedChapterID (exclusive). Active mirrors EndedChapterID == nil.
type ClassRecord struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CharacterID          uuid.UUID        `gorm:"type:uuid;column:character_id;not null;uniqueIndex:idx_class_record_unique,priority:1" json:"character_id"`
	ClassName            string           `gorm:"column:class_name;not null" json:"class_name"`
	NormalizedName       string           `gorm:"column:normalized_name;not null;uniqueIndex:idx_class_record_unique,priority:2;index" json:"normalized_name"`
	ChapterID            uuid.UUID        `gorm:"type:uuid;column:chapter_id;not null;uniqueIndex:idx_class_record_unique,priority:3" json:"chapter_id"`
	Active               bool             `gorm:"column:active;not null;index" json:"active"`
	EndedChapterID       *uuid.UUID       `gorm:"type:uuid;column:ended_chapter_id" json:"ended_chapter_id,omitempty"`
	EndedBy              NotificationType `gorm:"column:ended_by" json:"ended_by,omitempty"`
	EvolvedFromID        *uuid.UUID       `gorm:"type:uuid;column:evolved_from_id;index" json:"evolved_from_id,omitempty"`
	ConsolidatedFrom     datatypes.JSON   `gorm:"column:consolidated_from" json:"consolidated_from,omitempty"`
	SourceNotificationID *uuid.UUID       `gorm:"type:uuid;column:source_notification_id;index" json:"source_notification_id,omitempty"`
	CreatedAt            time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"not null" json:"updated_at"`
}

func (ClassRecord) TableName() string { return "class_records" }

// ConsolidatedFromIDs decodes the consolidated-from link set.
func (c *ClassRecord) ConsolidatedFromIDs() []uuid.UUID {
	if c == nil || len(c.ConsolidatedFrom) == 0 {
		return nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(c.ConsolidatedFrom, &ids); err != nil {
		return nil
	}
	return ids
}

type LevelRecord struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ClassRecordID        uuid.UUID  `gorm:"type:uuid;column:class_record_id;not null;uniqueIndex:idx_level_record_unique,priority:1" json:"class_record_id"`
	ChapterID            uuid.UUID  `gorm:"type:uuid;column:chapter_id;not null;uniqueIndex:idx_level_record_unique,priority:2" json:"chapter_id"`
	Level                int        `gorm:"column:level;not null;uniqueIndex:idx_level_record_unique,priority:3" json:"level"`
	SourceNotificationID *uuid.UUID `gorm:"type:uuid;column:source_notification_id;index" json:"source_notification_id,omitempty"`
	CreatedAt            time.Time  `gorm:"not null" json:"created_at"`
}

func (LevelRecord) TableName() string { return "level_records" }
