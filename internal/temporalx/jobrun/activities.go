package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

// Executor runs a pending job to a terminal status.
type Executor interface {
	Execute(ctx context.Context, jobID uuid.UUID) error
}

type Activities struct {
	Log      *logger.Logger
	Executor Executor
	Jobs     repos.JobRunRepo

	// HeartbeatEvery defaults to 10s; it must stay below the workflow's
	// HeartbeatTimeout.
	HeartbeatEvery time.Duration
}

func (a *Activities) Run(ctx context.Context, jobID string) (RunResult, error) {
	res := RunResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Executor == nil || a.Jobs == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id")
	}

	stop := a.startHeartbeat(ctx)
	execErr := a.Executor.Execute(ctx, id)
	stop()
	if execErr != nil {
		return res, execErr
	}

	job, err := a.Jobs.GetByID(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job %s not found", id)
	}
	res.Status = job.Status
	res.Stage = job.Stage
	res.Progress = job.Progress
	res.Error = job.Error
	if a.Log != nil {
		a.Log.Info("job run finished", "job_id", id, "status", job.Status, "stage", job.Stage)
	}
	return res, nil
}

// startHeartbeat keeps the activity alive and lets Temporal deliver workflow
// cancellation to ctx.
func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.HeartbeatEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
