package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/jobs/runtime"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/services"
)

type Config struct {
	OwnerID   string
	LeaseTTL  time.Duration
	Heartbeat time.Duration
}

// Worker executes jobs in this process. It serves both as the in-process
// dispatcher and as the body of the Temporal activity.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config

	base    context.Context
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.OwnerID == "" {
		cfg.OwnerID = "worker"
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg,
		base:     context.Background(),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start binds dispatched executions to ctx; cancelling it stops them all.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	w.base = ctx
	w.mu.Unlock()
}

// Dispatch runs the job on a new goroutine.
func (w *Worker) Dispatch(_ context.Context, job *types.JobRun) error {
	if job == nil || job.ID == uuid.Nil {
		return fmt.Errorf("missing job")
	}
	if _, ok := w.registry.Get(job.JobType); !ok {
		return &missingHandlerError{JobType: job.JobType}
	}
	w.mu.Lock()
	base := w.base
	w.mu.Unlock()
	w.wg.Add(1)
	go func(id uuid.UUID) {
		defer w.wg.Done()
		if err := w.Execute(base, id); err != nil {
			w.log.Warn("job execution ended with error", "job_id", id, "error", err)
		}
	}(job.ID)
	return nil
}

// Cancel stops a job this worker runs. Unknown ids are ignored.
func (w *Worker) Cancel(_ context.Context, jobID uuid.UUID) error {
	w.mu.Lock()
	cancel, ok := w.cancels[jobID]
	w.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Wait blocks until every dispatched execution returned.
func (w *Worker) Wait() { w.wg.Wait() }

// Execute claims the pending job, runs its handler with a heartbeat, and
// makes sure the job ends in a terminal status.
func (w *Worker) Execute(parent context.Context, jobID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: parent}
	claimed, err := w.repo.MarkRunning(dbc, jobID, w.cfg.OwnerID, w.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		w.log.Info("job not pending; skipping", "job_id", jobID)
		return nil
	}
	job, err := w.repo.GetByID(dbc, jobID)
	if err != nil || job == nil {
		return fmt.Errorf("reload job %s: %v", jobID, err)
	}

	ctx, cancel := context.WithCancel(parent)
	w.mu.Lock()
	w.cancels[jobID] = cancel
	w.mu.Unlock()
	defer func() {
		cancel()
		w.mu.Lock()
		delete(w.cancels, jobID)
		w.mu.Unlock()
	}()

	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		if err := jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType}); err != nil {
			w.log.Error("finish job failed", "job_id", jobID, "error", err)
			return err
		}
		return nil
	}

	hbDone := make(chan struct{})
	go w.heartbeat(ctx, cancel, jobID, hbDone)
	runErr := w.runHandler(h, jc)
	cancel()
	<-hbDone

	var finishErr error
	switch {
	case runErr == nil:
		// handlers normally finish the job themselves
		finishErr = jc.Succeed("done", nil)
	case errors.Is(runErr, runtime.ErrCancelled), errors.Is(runErr, context.Canceled):
		w.log.Info("job stopped after cancellation", "job_id", jobID)
	default:
		finishErr = jc.Fail("run", runErr)
	}
	if finishErr != nil {
		w.log.Error("finish job failed", "job_id", jobID, "error", finishErr)
		return finishErr
	}
	return nil
}

func (w *Worker) runHandler(h runtime.Handler, jc *runtime.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"job_id", jc.Job.ID,
				"job_type", jc.Job.JobType,
				"panic", r,
			)
			err = errFromRecover(r)
		}
	}()
	return h.Run(jc)
}

// heartbeat extends the lease while the job runs and cancels the execution
// once the stored job is no longer running.
func (w *Worker) heartbeat(ctx context.Context, cancel context.CancelFunc, jobID uuid.UUID, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dbc := dbctx.Context{Ctx: ctx}
			if err := w.repo.Heartbeat(dbc, jobID, w.cfg.LeaseTTL); err != nil {
				w.log.Warn("job heartbeat failed", "job_id", jobID, "error", err)
				continue
			}
			cur, err := w.repo.GetByID(dbc, jobID)
			if err == nil && cur != nil && cur.Status != jobtypes.StatusRunning {
				cancel()
				return
			}
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
