package jobrun

import (
	"context"
	"errors"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
)

func runWorkflow(t *testing.T, status string) error {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(func(_ context.Context, jobID string) (RunResult, error) {
		return RunResult{JobID: jobID, Status: status, Stage: "run", Error: "boom"}, nil
	}, activity.RegisterOptions{Name: ActivityRun})

	env.ExecuteWorkflow(Workflow, "8b0f3a52-8f0e-4bb4-9d43-0c1f5a3f0d11")
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	return env.GetWorkflowError()
}

func TestWorkflowOutcomeFollowsJobStatus(t *testing.T) {
	if err := runWorkflow(t, jobtypes.StatusCompleted); err != nil {
		t.Fatalf("completed job: %v", err)
	}
	if err := runWorkflow(t, jobtypes.StatusCancelled); err != nil {
		t.Fatalf("cancelled job: %v", err)
	}
	if err := runWorkflow(t, jobtypes.StatusFailed); err == nil {
		t.Fatalf("failed job should fail the workflow")
	}
	if err := runWorkflow(t, jobtypes.StatusRunning); err == nil {
		t.Fatalf("non-terminal status should fail the workflow")
	}
}

func TestWorkflowRejectsEmptyJobID(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.ExecuteWorkflow(Workflow, "  ")
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("expected error for empty job id")
	}
}

func TestWorkflowRunsActivityOnce(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	calls := 0
	env.RegisterActivityWithOptions(func(context.Context, string) (RunResult, error) {
		calls++
		return RunResult{}, errors.New("finish job failed")
	}, activity.RegisterOptions{Name: ActivityRun})

	env.ExecuteWorkflow(Workflow, "8b0f3a52-8f0e-4bb4-9d43-0c1f5a3f0d11")
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("activity error should fail the workflow")
	}
	if calls != 1 {
		t.Fatalf("activity should run once, ran %d times", calls)
	}
}
