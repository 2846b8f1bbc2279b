package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type NotificationState string

const (
	StateUnassigned   NotificationState = "unassigned"
	StateAssigned     NotificationState = "assigned"
	StateAutoAccepted NotificationState = "auto_accepted"
	StateNeedsReview  NotificationState = "needs_review"
	StateProcessed    NotificationState = "processed"
	StateArchived     NotificationState = "archived"
)

const (
	AttributedManual     = "manual"
	AttributedClassifier = "classifier"
	AttributedPattern    = "pattern"
)

// RawNotification is one bracketed substring found in a chapter. It is the
// inbox for every progression fact and is never deleted, only archived.
type RawNotification struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterID       uuid.UUID        `gorm:"type:uuid;column:chapter_id;not null;uniqueIndex:idx_raw_notification_position,priority:1" json:"chapter_id"`
	Position        int              `gorm:"column:position;not null;uniqueIndex:idx_raw_notification_position,priority:2" json:"position"`
	RawText         string           `gorm:"column:raw_text;not null" json:"raw_text"`
	SurroundingText string           `gorm:"column:surrounding_text" json:"surrounding_text,omitempty"`
	Type            NotificationType `gorm:"column:type;index" json:"type,omitempty"`
	Fields          datatypes.JSON   `gorm:"column:fields" json:"fields,omitempty"`
	Confidence      *float64         `gorm:"column:confidence" json:"confidence,omitempty"`
	Rationale       *string          `gorm:"column:rationale" json:"rationale,omitempty"`
	AttributedBy    string           `gorm:"column:attributed_by" json:"attributed_by,omitempty"`
	CharacterID     *uuid.UUID       `gorm:"type:uuid;column:character_id;index" json:"character_id,omitempty"`
	Assigned        bool             `gorm:"column:assigned;not null;index" json:"assigned"`
	NeedsReview     bool             `gorm:"column:needs_review;not null;index" json:"needs_review"`
	Processed       bool             `gorm:"column:processed;not null;index" json:"processed"`
	Archived        bool             `gorm:"column:archived;not null;index" json:"archived"`
	ProcessedAt     *time.Time       `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessError    string           `gorm:"column:process_error" json:"process_error,omitempty"`
	CreatedAt       time.Time        `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"not null" json:"updated_at"`

	Chapter *Chapter `gorm:"foreignKey:ChapterID" json:"chapter,omitempty"`
}

func (RawNotification) TableName() string { return "raw_notifications" }

// State derives the workflow state from the stored flags.
func (n *RawNotification) State() NotificationState {
	switch {
	case n == nil:
		return ""
	case n.Archived:
		return StateArchived
	case n.Processed:
		return StateProcessed
	case !n.Assigned:
		return StateUnassigned
	case n.NeedsReview:
		return StateNeedsReview
	case n.AttributedBy == AttributedClassifier:
		return StateAutoAccepted
	default:
		return StateAssigned
	}
}

// Ready reports whether the ledger writer may commit the notification.
func (n *RawNotification) Ready() bool {
	return n != nil && n.Assigned && !n.Archived && n.CharacterID != nil && *n.CharacterID != uuid.Nil
}
