package realtime

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventJobCreated   EventType = "JobCreated"
	EventJobProgress  EventType = "JobProgress"
	EventJobFailed    EventType = "JobFailed"
	EventJobDone      EventType = "JobDone"
	EventJobCancelled EventType = "JobCancelled"
)

// JobEvent is one job lifecycle change as published to subscribers.
type JobEvent struct {
	Event    EventType `json:"event"`
	JobID    uuid.UUID `json:"job_id"`
	JobType  string    `json:"job_type"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage,omitempty"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}
