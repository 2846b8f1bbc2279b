package services

import (
	"context"
	"time"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/realtime"
	"github.com/yungbote/progressledger/internal/realtime/bus"
)

type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
	JobCancelled(job *types.JobRun)
}

type jobNotifier struct {
	log *logger.Logger
	hub *realtime.Hub
	bus bus.Bus
}

// NewJobNotifier logs every job event and delivers it to local stream
// clients. With a bus the event is published instead, and the bus forwarder
// feeds the hub, so every API process sees events from every worker.
func NewJobNotifier(baseLog *logger.Logger, hub *realtime.Hub, b bus.Bus) JobNotifier {
	return &jobNotifier{log: baseLog.With("service", "JobNotifier"), hub: hub, bus: b}
}

func (n *jobNotifier) emit(ev realtime.JobEvent) {
	ev.At = time.Now().UTC()
	n.log.Debug("job event",
		"event", string(ev.Event),
		"job_id", ev.JobID,
		"job_type", ev.JobType,
		"stage", ev.Stage,
		"progress", ev.Progress,
	)
	if n.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := n.bus.Publish(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		n.log.Warn("publish job event failed; delivering locally", "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(ev)
	}
}

func eventFor(kind realtime.EventType, job *types.JobRun) realtime.JobEvent {
	return realtime.JobEvent{
		Event:    kind,
		JobID:    job.ID,
		JobType:  job.JobType,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Message:  job.Message,
		Error:    job.Error,
	}
}

func (n *jobNotifier) JobCreated(job *types.JobRun) {
	if job == nil {
		return
	}
	n.emit(eventFor(realtime.EventJobCreated, job))
}

func (n *jobNotifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	if job == nil {
		return
	}
	ev := eventFor(realtime.EventJobProgress, job)
	ev.Stage, ev.Progress, ev.Message = stage, progress, message
	n.emit(ev)
}

func (n *jobNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	if job == nil {
		return
	}
	ev := eventFor(realtime.EventJobFailed, job)
	ev.Stage, ev.Error = stage, errorMessage
	n.emit(ev)
}

func (n *jobNotifier) JobDone(job *types.JobRun) {
	if job == nil {
		return
	}
	n.emit(eventFor(realtime.EventJobDone, job))
}

func (n *jobNotifier) JobCancelled(job *types.JobRun) {
	if job == nil {
		return
	}
	n.emit(eventFor(realtime.EventJobCancelled, job))
}
