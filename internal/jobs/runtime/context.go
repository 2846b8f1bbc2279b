package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/ctxutil"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/services"
)

// ErrCancelled is returned by handlers that stop because their job was
// cancelled.
var ErrCancelled = errors.New("job cancelled")

var stopStatuses = []string{
	jobtypes.StatusCompleted,
	jobtypes.StatusFailed,
	jobtypes.StatusCancelled,
}

/*
Context is the handle a handler gets for one job execution. Handlers report
progress and terminate only through it, never by writing job_run directly:
  - Progress writes stage/progress/message unless the job already stopped.
  - Fail and Succeed move the job to its terminal status and free the lease.
  - CheckCancelled is the cooperative cancellation point between units of work.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.JobRun
	Repo   repos.JobRunRepo
	Notify services.JobNotifier
	config map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodeConfig()
	c.applyTraceData()
	return c
}

func (c *Context) decodeConfig() error {
	c.config = map[string]any{}
	if c.Job == nil || len(c.Job.Config) == 0 {
		return nil
	}
	return json.Unmarshal(c.Job.Config, &c.config)
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	cfg := c.Config()
	traceID, _ := cfg["trace_id"].(string)
	reqID, _ := cfg["request_id"].(string)
	if strings.TrimSpace(traceID) == "" && strings.TrimSpace(reqID) == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   strings.TrimSpace(traceID),
		RequestID: strings.TrimSpace(reqID),
	})
}

// Config returns the decoded job config. It is never nil.
func (c *Context) Config() map[string]any {
	if c.config == nil {
		c.config = map[string]any{}
	}
	return c.config
}

// DecodeConfig unmarshals the raw job config into v.
func (c *Context) DecodeConfig(v any) error {
	if c.Job == nil || len(c.Job.Config) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Job.Config, v); err != nil {
		return fmt.Errorf("decode %s config: %w", c.Job.JobType, err)
	}
	return nil
}

func (c *Context) dbc() dbctx.Context {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return dbctx.Context{Ctx: ctx}
}

// finishDBC keeps the context values but not its cancellation, so a terminal
// write still lands after the execution was cancelled.
func (c *Context) finishDBC() dbctx.Context {
	return dbctx.Context{Ctx: context.WithoutCancel(c.dbc().Ctx)}
}

// CheckCancelled reports ErrCancelled once the execution context is done or
// the stored job left the running state.
func (c *Context) CheckCancelled() error {
	if c.Ctx != nil && c.Ctx.Err() != nil {
		return ErrCancelled
	}
	if c.Repo == nil || c.Job == nil {
		return nil
	}
	cur, err := c.Repo.GetByID(c.dbc(), c.Job.ID)
	if err != nil {
		return err
	}
	if cur == nil || cur.Status != jobtypes.StatusRunning {
		return ErrCancelled
	}
	return nil
}

// Progress records stage and percentage. It is a no-op once the job stopped.
func (c *Context) Progress(stage string, pct int, msg string) error {
	if c == nil {
		return nil
	}
	now := time.Now()
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, err := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, stopStatuses, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return fmt.Errorf("update job progress: %w", err)
		}
		if !ok {
			return nil
		}
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
	return nil
}

// Fail marks the job failed unless it already stopped.
func (c *Context) Fail(stage string, err error) error {
	if c == nil {
		return nil
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	now := time.Now()
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, ferr := c.Repo.Finish(c.finishDBC(), c.Job.ID, jobtypes.StatusFailed, map[string]interface{}{
			"stage":       stage,
			"message":     "",
			"error":       msg,
			"finished_at": now,
		})
		if ferr != nil {
			return fmt.Errorf("mark job failed: %w", ferr)
		}
		if !ok {
			return nil
		}
	}
	if c.Job != nil {
		c.Job.Status = jobtypes.StatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.FinishedAt = &now
		c.Job.LeaseKey = nil
		observability.ObserveJob(c.Job.JobType, jobtypes.StatusFailed)
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
	return nil
}

// Succeed stores result and marks the job completed unless it already stopped.
func (c *Context) Succeed(finalStage string, result any) error {
	if c == nil {
		return nil
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, err := c.Repo.Finish(c.finishDBC(), c.Job.ID, jobtypes.StatusCompleted, map[string]interface{}{
			"stage":       finalStage,
			"progress":    100,
			"message":     "",
			"error":       "",
			"result":      res,
			"finished_at": now,
		})
		if err != nil {
			return fmt.Errorf("mark job completed: %w", err)
		}
		if !ok {
			return nil
		}
	}
	if c.Job != nil {
		c.Job.Status = jobtypes.StatusCompleted
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Result = res
		c.Job.FinishedAt = &now
		c.Job.LeaseKey = nil
		observability.ObserveJob(c.Job.JobType, jobtypes.StatusCompleted)
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job)
	}
	return nil
}
