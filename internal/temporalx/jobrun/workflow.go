package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
)

// Workflow executes one job run. The job row, not workflow history, is the
// source of truth for progress, so no retries happen at this level: a job
// that failed stays failed until someone starts a new one.
func Workflow(ctx workflow.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		WaitForCancellation: true,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var out RunResult
	if err := workflow.ExecuteActivity(ctx, ActivityRun, jobID).Get(ctx, &out); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(out.Status)) {
	case jobtypes.StatusCompleted, jobtypes.StatusCancelled:
		return nil
	case jobtypes.StatusFailed:
		return fmt.Errorf("job failed (stage=%s): %s", out.Stage, out.Error)
	default:
		return fmt.Errorf("job ended in unexpected status %q", out.Status)
	}
}
