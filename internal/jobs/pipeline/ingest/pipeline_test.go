package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/data/repos/testutil"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	jobrt "github.com/yungbote/progressledger/internal/jobs/runtime"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/services"
)

func newPipeline(t *testing.T) (*Pipeline, *repos.Set, func(cfg any) *jobrt.Context) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	p := New(log,
		services.NewChapterService(db, log, set.Chapters, set.Notifications),
		services.NewCharacterService(log, set.Characters),
	)
	notify := services.NewJobNotifier(log, nil, nil)
	mk := func(cfg any) *jobrt.Context {
		job := testutil.SeedRunningJob(t, context.Background(), db, JobType, cfg)
		return jobrt.NewContext(context.Background(), db, job, set.JobRuns, notify)
	}
	return p, set, mk
}

func TestIngestStoresChaptersAndCandidates(t *testing.T) {
	p, set, mk := newPipeline(t)
	cfg := Config{
		Characters: []services.CharacterInput{{Name: "Erin Solstice", Aliases: []string{"Erin"}}},
		Chapters: []services.ChapterInput{
			{OrderIndex: 2, Title: "1.01", Text: "She sighed. [Innkeeper Level 2!] Then [Skill - Basic Cooking obtained!]"},
			{OrderIndex: 1, Title: "1.00", Text: "Erin woke up. [Innkeeper Class Obtained!]"},
		},
	}
	jc := mk(cfg)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	dbc := dbctx.Context{Ctx: context.Background()}
	job, err := set.JobRuns.GetByID(dbc, jc.Job.ID)
	if err != nil || job == nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != jobtypes.StatusCompleted {
		t.Fatalf("status=%s error=%q", job.Status, job.Error)
	}
	var res Result
	if err := json.Unmarshal(job.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Chapters != 2 || res.Inserted != 3 || res.CharactersCreated != 1 || res.LatestOrder != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	n, err := set.Notifications.CountByStatus(dbc, repos.StatusUnassigned)
	if err != nil || n != 3 {
		t.Fatalf("unassigned=%d err=%v", n, err)
	}

	// same chapters and character again: nothing new, no failure
	jc = mk(cfg)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run again: %v", err)
	}
	job, _ = set.JobRuns.GetByID(dbc, jc.Job.ID)
	if job.Status != jobtypes.StatusCompleted {
		t.Fatalf("rerun status=%s error=%q", job.Status, job.Error)
	}
	_ = json.Unmarshal(job.Result, &res)
	if res.Inserted != 0 || res.CharactersCreated != 0 {
		t.Fatalf("rerun should insert nothing, got %+v", res)
	}
}

func TestIngestRejectsEmptyConfig(t *testing.T) {
	p, set, mk := newPipeline(t)
	jc := mk(map[string]any{})
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job, _ := set.JobRuns.GetByID(dbctx.Context{Ctx: context.Background()}, jc.Job.ID)
	if job.Status != jobtypes.StatusFailed || job.Stage != "validate" {
		t.Fatalf("expected validate failure, got %s/%s", job.Status, job.Stage)
	}
	if job.LeaseKey != nil {
		t.Fatalf("failed job must release the lease")
	}
}
