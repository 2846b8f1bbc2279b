package process

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/data/repos/testutil"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/domain/ledger"
	jobrt "github.com/yungbote/progressledger/internal/jobs/runtime"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/services"
)

func TestProcessDrainsReadyNotificationsInBatches(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	set := repos.NewSet(db, log)
	chs := testutil.SeedChapters(t, ctx, db, 3)
	erin := testutil.SeedCharacter(t, ctx, db, "Erin Solstice")
	id := &erin.ID

	testutil.SeedNotification(t, ctx, db, chs[1], 10, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Innkeeper"}, id)
	testutil.SeedNotification(t, ctx, db, chs[2], 10, ledger.TypeLevelUp, ledger.LevelUp{ClassName: "Innkeeper", Level: 3}, id)
	bad := testutil.SeedNotification(t, ctx, db, chs[2], 20, ledger.TypeOther, nil, id)
	testutil.SeedNotification(t, ctx, db, chs[3], 5, ledger.TypeAbilityObtained, ledger.AbilityObtained{Name: "Basic Cooking", Kind: ledger.KindSkill}, id)
	// not ready: never picked up
	testutil.SeedNotification(t, ctx, db, chs[3], 50, ledger.TypeAbilityObtained, ledger.AbilityObtained{Name: "Dodge", Kind: ledger.KindSkill}, nil)

	job := testutil.SeedRunningJob(t, ctx, db, JobType, Config{BatchSize: 2})
	jc := jobrt.NewContext(ctx, db, job, set.JobRuns, services.NewJobNotifier(log, nil, nil))
	p := New(log, set.Notifications, services.NewLedgerWriter(db, log, set), 0)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	got, err := set.JobRuns.GetByID(dbc, job.ID)
	if err != nil || got == nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != jobtypes.StatusCompleted {
		t.Fatalf("status=%s error=%q", got.Status, got.Error)
	}
	var res Result
	if err := json.Unmarshal(got.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.ProcessedCount != 3 || res.FailedCount != 1 || res.Batches != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].NotificationID != bad.ID {
		t.Fatalf("expected failure for %s, got %+v", bad.ID, res.Errors)
	}

	ready, _ := set.Notifications.CountByStatus(dbc, repos.StatusReady)
	processed, _ := set.Notifications.CountByStatus(dbc, repos.StatusProcessed)
	if ready != 1 || processed != 3 {
		t.Fatalf("ready=%d processed=%d", ready, processed)
	}
	failed, _ := set.Notifications.GetByID(dbc, bad.ID)
	if failed.ProcessError == "" || failed.ProcessedAt != nil {
		t.Fatalf("failure should be recorded on the row, got %+v", failed)
	}
}

func TestProcessStopsWhenCancelled(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	ctx, cancel := context.WithCancel(context.Background())
	ch := testutil.SeedChapter(t, context.Background(), db, 1)
	erin := testutil.SeedCharacter(t, context.Background(), db, "Erin Solstice")
	testutil.SeedNotification(t, context.Background(), db, ch, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Innkeeper"}, &erin.ID)

	job := testutil.SeedRunningJob(t, context.Background(), db, JobType, nil)
	jc := jobrt.NewContext(ctx, db, job, set.JobRuns, nil)
	cancel()
	p := New(log, set.Notifications, services.NewLedgerWriter(db, log, set), 10)
	if err := p.Run(jc); err != jobrt.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	n, _ := set.Notifications.CountByStatus(dbctx.Context{Ctx: context.Background()}, repos.StatusProcessed)
	if n != 0 {
		t.Fatalf("nothing should be processed after cancellation, got %d", n)
	}
}
