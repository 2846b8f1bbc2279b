package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/temporalx/jobrun"
)

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	c, err := NewClient(context.Background(), Config{}, logger.NewNop())
	if err != nil || c != nil {
		t.Fatalf("expected nil client and nil error, got %v %v", c, err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_NAMESPACE_RETENTION_DAYS", "900")
	cfg := LoadConfig()
	if cfg.Enabled() {
		t.Fatalf("expected disabled config")
	}
	if cfg.Namespace != "progressledger" || cfg.TaskQueue != "progressledger" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.NamespaceRetention != 7*24*time.Hour {
		t.Fatalf("retention clamp: %v", cfg.NamespaceRetention)
	}
}

func TestClampBackoff(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}
	for _, tc := range cases {
		if got := clampBackoff(base, max, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v want %v", tc.attempt, got, tc.want)
		}
	}
	if got := clampBackoff(0, 0, 1); got != 250*time.Millisecond {
		t.Fatalf("zero base: %v", got)
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if isRetryableRPC(nil) {
		t.Fatalf("nil retryable")
	}
	if !isRetryableRPC(status.Error(codes.Unavailable, "down")) {
		t.Fatalf("unavailable should retry")
	}
	if isRetryableRPC(status.Error(codes.PermissionDenied, "no")) {
		t.Fatalf("permission denied should not retry")
	}
	if !isRetryableRPC(context.DeadlineExceeded) {
		t.Fatalf("deadline should retry")
	}
	if isRetryableRPC(errors.New("boom")) {
		t.Fatalf("plain error should not retry")
	}
}

type fakeRun struct {
	temporalsdkclient.WorkflowRun
	id string
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return "run-1" }

type fakeWorkflowClient struct {
	started   []temporalsdkclient.StartWorkflowOptions
	args      []interface{}
	cancelled []string
	cancelErr error
}

func (f *fakeWorkflowClient) ExecuteWorkflow(_ context.Context, opts temporalsdkclient.StartWorkflowOptions, _ interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error) {
	f.started = append(f.started, opts)
	f.args = append(f.args, args...)
	return fakeRun{id: opts.ID}, nil
}

func (f *fakeWorkflowClient) CancelWorkflow(_ context.Context, workflowID string, _ string) error {
	f.cancelled = append(f.cancelled, workflowID)
	return f.cancelErr
}

func TestDispatcherStartsWorkflowPerJob(t *testing.T) {
	fc := &fakeWorkflowClient{}
	d := NewDispatcher(logger.NewNop(), fc, "ledger-queue")
	job := &types.JobRun{ID: uuid.New(), JobType: "process"}

	if err := d.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(fc.started) != 1 {
		t.Fatalf("expected one workflow start, got %d", len(fc.started))
	}
	opts := fc.started[0]
	if opts.ID != jobrun.WorkflowID(job.ID.String()) || opts.TaskQueue != "ledger-queue" {
		t.Fatalf("start options: %+v", opts)
	}
	if len(fc.args) != 1 || fc.args[0] != job.ID.String() {
		t.Fatalf("workflow args: %v", fc.args)
	}
	if err := d.Dispatch(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil job")
	}
}

func TestDispatcherCancelToleratesFinishedWorkflow(t *testing.T) {
	id := uuid.New()
	fc := &fakeWorkflowClient{cancelErr: serviceerror.NewNotFound("workflow not found")}
	d := NewDispatcher(logger.NewNop(), fc, "q")
	if err := d.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel on finished workflow: %v", err)
	}
	if len(fc.cancelled) != 1 || fc.cancelled[0] != jobrun.WorkflowID(id.String()) {
		t.Fatalf("cancelled: %v", fc.cancelled)
	}

	fc.cancelErr = errors.New("frontend down")
	if err := d.Cancel(context.Background(), id); err == nil {
		t.Fatalf("expected transport error to surface")
	}
}
