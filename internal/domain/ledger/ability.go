package ledger

import (
	"time"

	"github.com/google/uuid"
)

// AbilityCatalogEntry is shared across characters; (normalized_name, kind) is
// the dedup key.
type AbilityCatalogEntry struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string      `gorm:"column:name;not null" json:"name"`
	NormalizedName string      `gorm:"column:normalized_name;not null;uniqueIndex:idx_ability_catalog_unique,priority:1" json:"normalized_name"`
	Kind           AbilityKind `gorm:"column:kind;not null;uniqueIndex:idx_ability_catalog_unique,priority:2" json:"kind"`
	CreatedAt      time.Time   `gorm:"not null" json:"created_at"`
}

func (AbilityCatalogEntry) TableName() string { return "ability_catalog" }

type AbilityAcquisition struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CharacterID          uuid.UUID  `gorm:"type:uuid;column:character_id;not null;uniqueIndex:idx_ability_acquisition_unique,priority:1" json:"character_id"`
	AbilityID            uuid.UUID  `gorm:"type:uuid;column:ability_id;not null;uniqueIndex:idx_ability_acquisition_unique,priority:2" json:"ability_id"`
	ChapterID            uuid.UUID  `gorm:"type:uuid;column:chapter_id;not null;uniqueIndex:idx_ability_acquisition_unique,priority:3" json:"chapter_id"`
	ClassRecordID        *uuid.UUID `gorm:"type:uuid;column:class_record_id;index" json:"class_record_id,omitempty"`
	LevelAtAcquisition   *int       `gorm:"column:level_at_acquisition" json:"level_at_acquisition,omitempty"`
	SourceNotificationID *uuid.UUID `gorm:"type:uuid;column:source_notification_id;index" json:"source_notification_id,omitempty"`
	CreatedAt            time.Time  `gorm:"not null" json:"created_at"`
}

func (AbilityAcquisition) TableName() string { return "ability_acquisitions" }

// RemovalFact records that a subject was lost, changed or consolidated away at
// a chapter. It never deletes earlier rows; visibility is decided at query time.
type RemovalFact struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CharacterID          uuid.UUID        `gorm:"type:uuid;column:character_id;not null;uniqueIndex:idx_removal_fact_unique,priority:1" json:"character_id"`
	SubjectName          string           `gorm:"column:subject_name;not null" json:"subject_name"`
	SubjectNormalized    string           `gorm:"column:subject_normalized;not null;uniqueIndex:idx_removal_fact_unique,priority:2;index" json:"subject_normalized"`
	ChapterID            uuid.UUID        `gorm:"type:uuid;column:chapter_id;not null;uniqueIndex:idx_removal_fact_unique,priority:3" json:"chapter_id"`
	Kind                 NotificationType `gorm:"column:kind;not null;uniqueIndex:idx_removal_fact_unique,priority:4" json:"kind"`
	SourceNotificationID *uuid.UUID       `gorm:"type:uuid;column:source_notification_id;index" json:"source_notification_id,omitempty"`
	CreatedAt            time.Time        `gorm:"not null" json:"created_at"`
}

func (RemovalFact) TableName() string { return "removal_facts" }
