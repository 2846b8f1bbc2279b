package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// LeaseKeyLedger is the single lease every long-running job competes for.
const LeaseKeyLedger = "ledger"

// JobRun doubles as the system-wide job lease: LeaseKey is unique and only
// non-null while the job is pending or running, so at most one row can hold it.
type JobRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType        string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Stage          string         `gorm:"column:stage;not null" json:"stage"`
	Progress       int            `gorm:"column:progress;not null" json:"progress"`
	Message        string         `gorm:"column:message" json:"message,omitempty"`
	Error          string         `gorm:"column:error" json:"error,omitempty"`
	Config         datatypes.JSON `gorm:"column:config" json:"config,omitempty"`
	Result         datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	LeaseKey       *string        `gorm:"column:lease_key;uniqueIndex" json:"-"`
	OwnerID        string         `gorm:"column:owner_id;index" json:"owner_id,omitempty"`
	AcquiredAt     *time.Time     `gorm:"column:acquired_at" json:"acquired_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LeaseExpiresAt *time.Time     `gorm:"column:lease_expires_at;index" json:"lease_expires_at,omitempty"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }

func (j *JobRun) Terminal() bool {
	if j == nil {
		return false
	}
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
