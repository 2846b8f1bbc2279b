package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
)

type stubRepo struct {
	repos.JobRunRepo
	err      error
	stopped  bool
	finishes []context.Context
}

func (r *stubRepo) UpdateFieldsUnlessStatus(dbctx.Context, uuid.UUID, []string, map[string]interface{}) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return !r.stopped, nil
}

func (r *stubRepo) Finish(dbc dbctx.Context, _ uuid.UUID, _ string, _ map[string]interface{}) (bool, error) {
	r.finishes = append(r.finishes, dbc.Ctx)
	if r.err != nil {
		return false, r.err
	}
	if dbc.Ctx.Err() != nil {
		return false, dbc.Ctx.Err()
	}
	return !r.stopped, nil
}

func runningJob() *types.JobRun {
	return &types.JobRun{ID: uuid.New(), JobType: "process", Status: jobtypes.StatusRunning}
}

func TestFinishWritesSurviveCancelledExecution(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &stubRepo{}
	jc := NewContext(ctx, nil, runningJob(), repo, nil)

	if err := jc.Fail("run", errors.New("boom")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if jc.Job.Status != jobtypes.StatusFailed || jc.Job.Error != "boom" {
		t.Fatalf("unexpected job %+v", jc.Job)
	}
	if len(repo.finishes) != 1 || repo.finishes[0].Err() != nil {
		t.Fatalf("finish must run on a live context")
	}
}

func TestRepoErrorsSurface(t *testing.T) {
	repo := &stubRepo{err: errors.New("db down")}
	jc := NewContext(context.Background(), nil, runningJob(), repo, nil)

	if err := jc.Progress("process", 10, "working"); err == nil {
		t.Fatalf("Progress should return the repo error")
	}
	if jc.Job.Progress != 0 {
		t.Fatalf("progress must not be applied on error, got %d", jc.Job.Progress)
	}
	if err := jc.Succeed("done", nil); err == nil {
		t.Fatalf("Succeed should return the repo error")
	}
	if err := jc.Fail("run", errors.New("boom")); err == nil {
		t.Fatalf("Fail should return the repo error")
	}
	if jc.Job.Status != jobtypes.StatusRunning {
		t.Fatalf("status must stay running when the write failed, got %s", jc.Job.Status)
	}
}

func TestStoppedJobIgnoresLateWrites(t *testing.T) {
	repo := &stubRepo{stopped: true}
	jc := NewContext(context.Background(), nil, runningJob(), repo, nil)

	if err := jc.Succeed("done", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if jc.Job.Status != jobtypes.StatusRunning || jc.Job.Result != nil {
		t.Fatalf("stopped job must not be rewritten, got %+v", jc.Job)
	}
}
