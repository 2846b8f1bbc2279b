package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/data/repos/testutil"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
)

type attributionFixture struct {
	dbc  dbctx.Context
	svc  AttributionService
	set  *repos.Set
	ch   *types.Chapter
	erin *types.Character
	seed func(pos int, raw string) *types.RawNotification
}

func newAttributionFixture(t *testing.T) *attributionFixture {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()
	set := repos.NewSet(db, log)
	f := &attributionFixture{
		dbc:  dbctx.Context{Ctx: ctx, Tx: tx},
		svc:  NewAttributionService(db, log, set.Notifications, set.Characters, 0),
		set:  set,
		ch:   testutil.SeedChapter(t, ctx, tx, 1),
		erin: testutil.SeedCharacter(t, ctx, tx, "Erin Solstice"),
	}
	f.seed = func(pos int, raw string) *types.RawNotification {
		n := &types.RawNotification{ID: uuid.New(), ChapterID: f.ch.ID, Position: pos, RawText: raw}
		if err := tx.Create(n).Error; err != nil {
			t.Fatalf("seed notification: %v", err)
		}
		return n
	}
	return f
}

func TestAssignMakesNotificationsReady(t *testing.T) {
	f := newAttributionFixture(t)
	a := f.seed(1, "[Innkeeper Level 2!]")
	b := f.seed(2, "[Skill - Dodge obtained!]")
	out, err := f.svc.Assign(f.dbc, []uuid.UUID{a.ID, b.ID, a.ID}, f.erin.ID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	for _, n := range out {
		if n.State() != ledger.StateAssigned || !n.Ready() {
			t.Fatalf("expected assigned and ready, got %s", n.State())
		}
	}
	if _, err := f.svc.Assign(f.dbc, []uuid.UUID{a.ID}, uuid.New()); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("unknown character: %v", err)
	}
	if _, err := f.svc.Assign(f.dbc, []uuid.UUID{uuid.New()}, f.erin.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("unknown notification: %v", err)
	}
	if _, err := f.svc.Assign(f.dbc, nil, f.erin.ID); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("empty ids: %v", err)
	}

	n, err := f.svc.Unassign(f.dbc, a.ID)
	if err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if n.State() != ledger.StateUnassigned || n.CharacterID != nil {
		t.Fatalf("expected unassigned, got %+v", n)
	}
}

func TestAutoAttributeGatesOnThreshold(t *testing.T) {
	f := newAttributionFixture(t)
	erin := f.erin.ID
	cases := []struct {
		name       string
		character  *uuid.UUID
		typ        string
		confidence float64
		want       ledger.NotificationState
	}{
		{"confident", &erin, "level_up", 0.97, ledger.StateAutoAccepted},
		{"at threshold", &erin, "level_up", DefaultAutoAcceptThreshold, ledger.StateAutoAccepted},
		{"unsure", &erin, "level_up", 0.5, ledger.StateNeedsReview},
		{"false positive", &erin, "false_positive", 0.99, ledger.StateNeedsReview},
		{"no character", nil, "level_up", 0.99, ledger.StateUnassigned},
	}
	for i, tc := range cases {
		n := f.seed(i+1, "[Innkeeper Level 2!]")
		out, err := f.svc.AutoAttribute(f.dbc, Attribution{
			NotificationID: n.ID,
			CharacterID:    tc.character,
			Type:           tc.typ,
			Confidence:     tc.confidence,
			Rationale:      "test",
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if out.State() != tc.want {
			t.Fatalf("%s: state=%s want %s", tc.name, out.State(), tc.want)
		}
		if out.Confidence == nil || *out.Confidence != tc.confidence {
			t.Fatalf("%s: confidence not stored", tc.name)
		}
	}

	n := f.seed(50, "[Innkeeper Level 2!]")
	if _, err := f.svc.AutoAttribute(f.dbc, Attribution{NotificationID: n.ID, Type: "level_up", Confidence: 1.5}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("confidence out of range: %v", err)
	}
	if _, err := f.svc.AutoAttribute(f.dbc, Attribution{NotificationID: n.ID, Type: "levelled", Confidence: 0.5}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("unknown type: %v", err)
	}
}

func TestAutoAttributeDerivesOrValidatesFields(t *testing.T) {
	f := newAttributionFixture(t)
	erin := f.erin.ID
	n := f.seed(1, "[Innkeeper Level 4!]")
	out, err := f.svc.AutoAttribute(f.dbc, Attribution{NotificationID: n.ID, CharacterID: &erin, Type: "level_up", Confidence: 0.99})
	if err != nil {
		t.Fatalf("AutoAttribute: %v", err)
	}
	p, err := ledger.DecodePayload(out.Type, json.RawMessage(out.Fields), "")
	if err != nil {
		t.Fatalf("decode stored fields: %v", err)
	}
	if lu, ok := p.(ledger.LevelUp); !ok || lu.ClassName != "Innkeeper" || lu.Level != 4 {
		t.Fatalf("expected derived level_up, got %#v", p)
	}

	bad := f.seed(2, "[Innkeeper Level 4!]")
	_, err = f.svc.AutoAttribute(f.dbc, Attribution{
		NotificationID: bad.ID,
		CharacterID:    &erin,
		Type:           "level_up",
		Fields:         json.RawMessage(`{"class_name":"Innkeeper","level":0}`),
		Confidence:     0.99,
	})
	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("invalid fields should be rejected, got %v", err)
	}
}

func TestClassifyLegacyTypeName(t *testing.T) {
	f := newAttributionFixture(t)
	n := f.seed(1, "[Skill - Dodge obtained!]")
	out, err := f.svc.Classify(f.dbc, n.ID, "skill_obtained", json.RawMessage(`{"skill_name":"Dodge"}`))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Type != ledger.TypeAbilityObtained {
		t.Fatalf("type=%s", out.Type)
	}
	p, _ := ledger.DecodePayload(out.Type, json.RawMessage(out.Fields), "")
	if ab, ok := p.(ledger.AbilityObtained); !ok || ab.Name != "Dodge" || ab.Kind != ledger.KindSkill {
		t.Fatalf("unexpected payload %#v", p)
	}
}

func TestArchiveLifecycle(t *testing.T) {
	f := newAttributionFixture(t)
	a := f.seed(1, "[Something]")
	done := f.seed(2, "[Innkeeper Level 2!]")
	if _, err := f.set.Notifications.UpdateFields(f.dbc, []uuid.UUID{done.ID}, map[string]interface{}{
		"processed": true, "assigned": true, "character_id": f.erin.ID,
	}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	if _, err := f.svc.Archive(f.dbc, []uuid.UUID{done.ID}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("archiving a processed notification: %v", err)
	}
	if n, err := f.svc.Archive(f.dbc, []uuid.UUID{a.ID}); err != nil || n != 1 {
		t.Fatalf("Archive n=%d err=%v", n, err)
	}
	if _, err := f.svc.Assign(f.dbc, []uuid.UUID{a.ID}, f.erin.ID); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("assigning an archived notification: %v", err)
	}

	rows, total, err := f.svc.List(f.dbc, repos.NotificationFilter{Status: repos.StatusUnassigned})
	if err != nil || total != 0 || len(rows) != 0 {
		t.Fatalf("archived rows must not be listed as unassigned: total=%d err=%v", total, err)
	}
	rows, total, err = f.svc.List(f.dbc, repos.NotificationFilter{Status: repos.StatusArchived})
	if err != nil || total != 1 || rows[0].ID != a.ID {
		t.Fatalf("archived listing total=%d err=%v", total, err)
	}

	if n, err := f.svc.Unarchive(f.dbc, []uuid.UUID{a.ID}); err != nil || n != 1 {
		t.Fatalf("Unarchive n=%d err=%v", n, err)
	}
	back, _ := f.svc.Get(f.dbc, a.ID)
	if back.State() != ledger.StateUnassigned {
		t.Fatalf("unarchived should be unassigned, got %s", back.State())
	}
}

func TestReviewQueueOrdersByConfidence(t *testing.T) {
	f := newAttributionFixture(t)
	erin := f.erin.ID
	for i, c := range []float64{0.8, 0.2, 0.5} {
		n := f.seed(i+1, "[Innkeeper Level 2!]")
		if _, err := f.svc.AutoAttribute(f.dbc, Attribution{NotificationID: n.ID, CharacterID: &erin, Type: "level_up", Confidence: c}); err != nil {
			t.Fatalf("AutoAttribute: %v", err)
		}
	}
	rows, total, err := f.svc.ReviewQueue(f.dbc, 10, 0)
	if err != nil || total != 3 {
		t.Fatalf("ReviewQueue total=%d err=%v", total, err)
	}
	if *rows[0].Confidence != 0.2 || *rows[1].Confidence != 0.5 || *rows[2].Confidence != 0.8 {
		t.Fatalf("unexpected order %v %v %v", *rows[0].Confidence, *rows[1].Confidence, *rows[2].Confidence)
	}
	if _, _, err := f.svc.List(f.dbc, repos.NotificationFilter{Status: "pending"}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("unknown status: %v", err)
	}
	from, to := 5, 2
	if _, _, err := f.svc.List(f.dbc, repos.NotificationFilter{ChapterFrom: &from, ChapterTo: &to}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("inverted range: %v", err)
	}
}
