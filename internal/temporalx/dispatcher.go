package temporalx

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/temporalx/jobrun"
)

// workflowClient is the part of the Temporal client the dispatcher uses.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
}

// Dispatcher starts one job_run workflow per job on the configured task queue.
type Dispatcher struct {
	log       *logger.Logger
	tc        workflowClient
	taskQueue string
}

func NewDispatcher(baseLog *logger.Logger, tc workflowClient, taskQueue string) *Dispatcher {
	return &Dispatcher{
		log:       baseLog.With("component", "TemporalDispatcher"),
		tc:        tc,
		taskQueue: taskQueue,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job *types.JobRun) error {
	if job == nil || job.ID == uuid.Nil {
		return fmt.Errorf("missing job")
	}
	id := job.ID.String()
	run, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        jobrun.WorkflowID(id),
		TaskQueue: d.taskQueue,
	}, jobrun.WorkflowName, id)
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	d.log.Info("job workflow started", "job_id", id, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}

// Cancel requests workflow cancellation. A workflow that already finished is
// not an error.
func (d *Dispatcher) Cancel(ctx context.Context, jobID uuid.UUID) error {
	err := d.tc.CancelWorkflow(ctx, jobrun.WorkflowID(jobID.String()), "")
	if err == nil {
		return nil
	}
	var nf *serviceerror.NotFound
	if errors.As(err, &nf) {
		return nil
	}
	return err
}
