package services

import (
	"context"
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

type ledgerFixture struct {
	t      *testing.T
	ctx    context.Context
	dbc    dbctx.Context
	set    *repos.Set
	writer LedgerWriter
	query  QueryService
	chs    map[int]*types.Chapter
	erin   *types.Character
}

func newLedgerFixture(t *testing.T, chapters int) *ledgerFixture {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()
	set := repos.NewSet(db, log)
	return &ledgerFixture{
		t:      t,
		ctx:    ctx,
		dbc:    dbctx.Context{Ctx: ctx, Tx: tx},
		set:    set,
		writer: NewLedgerWriter(db, log, set),
		query:  NewQueryService(log, set),
		chs:    testutil.SeedChapters(t, ctx, tx, chapters),
		erin:   testutil.SeedCharacter(t, ctx, tx, "Erin Solstice", "Erin"),
	}
}

// note seeds a notification assigned to Erin at chapter order.
func (f *ledgerFixture) note(order, pos int, t types.NotificationType, fields any) *types.RawNotification {
	f.t.Helper()
	id := f.erin.ID
	return testutil.SeedNotification(f.t, f.ctx, f.dbc.Tx, f.chs[order], pos, t, fields, &id)
}

func (f *ledgerFixture) process(notes ...*types.RawNotification) *ProcessResult {
	f.t.Helper()
	ids := make([]uuid.UUID, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	res, err := f.writer.Process(f.dbc, ids)
	if err != nil {
		f.t.Fatalf("Process: %v", err)
	}
	return res
}

func (f *ledgerFixture) classes(asOf int) []ClassAsOf {
	f.t.Helper()
	out, err := f.query.ClassesAsOf(f.dbc, f.erin.ID, &asOf)
	if err != nil {
		f.t.Fatalf("ClassesAsOf(%d): %v", asOf, err)
	}
	return out
}

func (f *ledgerFixture) abilities(asOf int) []AbilityAsOf {
	f.t.Helper()
	out, err := f.query.AbilitiesAsOf(f.dbc, f.erin.ID, &asOf, "")
	if err != nil {
		f.t.Fatalf("AbilitiesAsOf(%d): %v", asOf, err)
	}
	return out
}

func classNames(in []ClassAsOf) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, c.ClassName)
	}
	return out
}

func intp(v int) *int { return &v }

func TestProcessReplayIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t, 3)
	obtained := f.note(1, 10, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Innkeeper"})
	level := f.note(2, 10, ledger.TypeLevelUp, ledger.LevelUp{ClassName: "Innkeeper", Level: 2})
	skill := f.note(3, 10, ledger.TypeAbilityObtained, ledger.AbilityObtained{Name: "Basic Cooking", Kind: ledger.KindSkill})

	first := f.process(obtained, level, skill)
	if first.ProcessedCount != 3 || first.FailedCount != 0 {
		t.Fatalf("first pass %+v", first)
	}
	second := f.process(obtained, level, skill)
	if second.ProcessedCount != 3 || second.FailedCount != 0 {
		t.Fatalf("replay %+v", second)
	}
	for _, r := range second.Results {
		for _, e := range r.Effects {
			if e.Created {
				t.Fatalf("replay created %s for %s", e.Kind, r.NotificationID)
			}
		}
	}
	classes := f.classes(3)
	if len(classes) != 1 || classes[0].Level == nil || *classes[0].Level != 2 {
		t.Fatalf("unexpected classes %+v", classes)
	}
	if n, _ := f.set.Abilities.CountAcquisitions(f.dbc, f.erin.ID); n != 1 {
		t.Fatalf("acquisitions=%d want 1", n)
	}
}

func TestLevelsResolveAtCutoff(t *testing.T) {
	f := newLedgerFixture(t, 10)
	f.process(
		f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Warrior"}),
		f.note(3, 1, ledger.TypeLevelUp, ledger.LevelUp{ClassName: "Warrior", Level: 4}),
		f.note(10, 1, ledger.TypeLevelUp, ledger.LevelUp{ClassName: "Warrior", Level: 6}),
	)
	cases := []struct {
		asOf  int
		level *int
	}{
		{2, nil},
		{3, intp(4)},
		{5, intp(4)},
		{10, intp(6)},
	}
	for _, tc := range cases {
		got := f.classes(tc.asOf)
		if len(got) != 1 || got[0].ClassName != "Warrior" {
			t.Fatalf("as of %d: %+v", tc.asOf, got)
		}
		switch {
		case tc.level == nil && got[0].Level != nil:
			t.Fatalf("as of %d: expected no level, got %d", tc.asOf, *got[0].Level)
		case tc.level != nil && (got[0].Level == nil || *got[0].Level != *tc.level):
			t.Fatalf("as of %d: expected level %d, got %v", tc.asOf, *tc.level, got[0].Level)
		}
	}
	if got := f.classes(0); len(got) != 0 {
		t.Fatalf("nothing is held before chapter 1, got %+v", got)
	}
}

func TestRemovedAbilitiesAreOccludedAfterRemoval(t *testing.T) {
	f := newLedgerFixture(t, 15)
	f.process(
		f.note(3, 1, ledger.TypeAbilityObtained, ledger.AbilityObtained{Name: "Fireball", Kind: ledger.KindSpell}),
		f.note(10, 1, ledger.TypeSpellRemoved, ledger.SpellRemoved{Name: "Fireball"}),
	)
	at5 := f.abilities(5)
	if len(at5) != 1 || at5[0].Name != "Fireball" || at5[0].ChapterOrder != 3 {
		t.Fatalf("as of 5: %+v", at5)
	}
	if at15 := f.abilities(15); len(at15) != 0 {
		t.Fatalf("as of 15 Fireball should be gone, got %+v", at15)
	}
	if at2 := f.abilities(2); len(at2) != 0 {
		t.Fatalf("as of 2 nothing is known, got %+v", at2)
	}
}

func TestClassEvolutionSupersedesAtChapter(t *testing.T) {
	f := newLedgerFixture(t, 6)
	f.process(
		f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Warrior"}),
		f.note(5, 1, ledger.TypeClassEvolution, ledger.ClassEvolution{From: "Warrior", To: "Blademaster"}),
	)
	before := f.classes(4)
	if got := classNames(before); len(got) != 1 || got[0] != "Warrior" {
		t.Fatalf("as of 4: %v", got)
	}
	after := f.classes(5)
	if got := classNames(after); len(got) != 1 || got[0] != "Blademaster" {
		t.Fatalf("as of 5: %v", got)
	}

	warrior, err := f.set.Classes.GetByID(f.dbc, before[0].ClassRecordID)
	if err != nil || warrior == nil {
		t.Fatalf("load warrior: %v", err)
	}
	if warrior.Active || warrior.EndedChapterID == nil || *warrior.EndedChapterID != f.chs[5].ID {
		t.Fatalf("warrior should be closed at chapter 5, got %+v", warrior)
	}
	blade, err := f.set.Classes.GetByID(f.dbc, after[0].ClassRecordID)
	if err != nil || blade == nil {
		t.Fatalf("load blademaster: %v", err)
	}
	if !blade.Active || blade.EvolvedFromID == nil || *blade.EvolvedFromID != warrior.ID {
		t.Fatalf("blademaster should evolve from warrior, got %+v", blade)
	}
}

func TestClassObtainedAfterItsSupersessionIsClosed(t *testing.T) {
	f := newLedgerFixture(t, 6)
	evolution := f.note(5, 1, ledger.TypeClassEvolution, ledger.ClassEvolution{From: "Warrior", To: "Blademaster"})
	obtained := f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Warrior"})
	// separate calls so the evolution really lands first
	f.process(evolution)
	f.process(obtained)

	if got := classNames(f.classes(3)); len(got) != 1 || got[0] != "Warrior" {
		t.Fatalf("as of 3: %v", got)
	}
	if got := classNames(f.classes(6)); len(got) != 1 || got[0] != "Blademaster" {
		t.Fatalf("as of 6: %v", got)
	}
}

func TestConsolidationCreatesMergedClass(t *testing.T) {
	f := newLedgerFixture(t, 4)
	f.process(
		f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Warrior"}),
		f.note(2, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Mage"}),
		f.note(4, 1, ledger.TypeClassConsolidation, ledger.ClassConsolidation{From: []string{"Warrior", "Mage"}, Into: "Spellsword"}),
	)
	if got := classNames(f.classes(3)); len(got) != 2 || got[0] != "Mage" || got[1] != "Warrior" {
		t.Fatalf("as of 3: %v", got)
	}
	after := f.classes(4)
	if got := classNames(after); len(got) != 1 || got[0] != "Spellsword" {
		t.Fatalf("as of 4: %v", got)
	}
	merged, _ := f.set.Classes.GetByID(f.dbc, after[0].ClassRecordID)
	if ids := merged.ConsolidatedFromIDs(); len(ids) != 2 {
		t.Fatalf("expected two consolidated sources, got %v", ids)
	}
}

func TestSkillChangeReplacesSkill(t *testing.T) {
	f := newLedgerFixture(t, 5)
	f.process(
		f.note(1, 1, ledger.TypeAbilityObtained, ledger.AbilityObtained{Name: "Basic Cleaning", Kind: ledger.KindSkill}),
		f.note(4, 1, ledger.TypeSkillChange, ledger.SkillChange{From: "Basic Cleaning", To: "Advanced Cleaning"}),
	)
	at3 := f.abilities(3)
	if len(at3) != 1 || at3[0].Name != "Basic Cleaning" {
		t.Fatalf("as of 3: %+v", at3)
	}
	at4 := f.abilities(4)
	if len(at4) != 1 || at4[0].Name != "Advanced Cleaning" {
		t.Fatalf("as of 4: %+v", at4)
	}
}

func TestAbilityLinksHeldClassAndLevel(t *testing.T) {
	f := newLedgerFixture(t, 3)
	f.process(
		f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Innkeeper", Level: intp(1)}),
		f.note(2, 1, ledger.TypeLevelUp, ledger.LevelUp{ClassName: "Innkeeper", Level: 5}),
		f.note(3, 1, ledger.TypeAbilityObtained, ledger.AbilityObtained{Name: "Inn: Sanctuary", Kind: ledger.KindSkill}),
	)
	got := f.abilities(3)
	if len(got) != 1 || got[0].ClassName == nil || *got[0].ClassName != "Innkeeper" {
		t.Fatalf("unexpected abilities %+v", got)
	}
	if got[0].LevelAtAcquisition == nil || *got[0].LevelAtAcquisition != 5 {
		t.Fatalf("expected level 5 at acquisition, got %v", got[0].LevelAtAcquisition)
	}
}

func TestBatchIsolatesFailures(t *testing.T) {
	f := newLedgerFixture(t, 2)
	good := f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Warrior"})
	// no fields and the raw text does not parse
	bad := f.note(1, 2, ledger.TypeClassObtained, nil)
	alsoGood := f.note(2, 1, ledger.TypeLevelUp, ledger.LevelUp{ClassName: "Warrior", Level: 2})

	res := f.process(good, bad, alsoGood)
	if res.ProcessedCount != 2 || res.FailedCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].NotificationID != bad.ID || res.Errors[0].Code != apierr.CodeExtraction {
		t.Fatalf("unexpected failure %+v", res.Errors[0])
	}
	stored, _ := f.set.Notifications.GetByID(f.dbc, bad.ID)
	if stored.Processed || stored.ProcessedAt != nil || stored.ProcessError == "" {
		t.Fatalf("failure should be recorded, got %+v", stored)
	}
	ok, _ := f.set.Notifications.GetByID(f.dbc, good.ID)
	if !ok.Processed || ok.ProcessedAt == nil || ok.ProcessError != "" {
		t.Fatalf("success should be recorded, got %+v", ok)
	}
}

func TestProcessRejectsArchivedAndUnassigned(t *testing.T) {
	f := newLedgerFixture(t, 1)
	archived := f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Warrior"})
	if _, err := f.set.Notifications.UpdateFields(f.dbc, []uuid.UUID{archived.ID}, map[string]interface{}{"archived": true}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	orphan := testutil.SeedNotification(t, f.ctx, f.dbc.Tx, f.chs[1], 2, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Mage"}, nil)
	missing := &types.RawNotification{ID: uuid.New()}

	res := f.process(archived, orphan, missing)
	if res.ProcessedCount != 0 || res.FailedCount != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	codes := map[uuid.UUID]string{}
	for _, e := range res.Errors {
		codes[e.NotificationID] = e.Code
	}
	if codes[archived.ID] != apierr.CodeValidation || codes[orphan.ID] != apierr.CodeValidation || codes[missing.ID] != apierr.CodeNotFound {
		t.Fatalf("unexpected codes %v", codes)
	}
	if got := f.classes(1); len(got) != 0 {
		t.Fatalf("nothing should be written, got %+v", got)
	}
}

func TestProcessFalsePositiveArchives(t *testing.T) {
	f := newLedgerFixture(t, 1)
	fp := f.note(1, 1, ledger.TypeFalsePositive, nil)
	res := f.process(fp)
	if res.ProcessedCount != 1 || res.Results[0].Effects[0].Kind != EffectArchived {
		t.Fatalf("unexpected result %+v", res)
	}
	stored, _ := f.set.Notifications.GetByID(f.dbc, fp.ID)
	if !stored.Archived || !stored.Processed {
		t.Fatalf("false positive should be archived, got %+v", stored)
	}
	// replaying an archived false positive is still fine
	if res := f.process(fp); res.ProcessedCount != 1 {
		t.Fatalf("replay %+v", res)
	}
}

func TestProcessUnknownIDsIsNotFound(t *testing.T) {
	f := newLedgerFixture(t, 1)
	_, err := f.writer.Process(f.dbc, []uuid.UUID{uuid.New(), uuid.New()})
	if !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := f.writer.Process(f.dbc, nil); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected Validation for empty ids, got %v", err)
	}
}

func TestTimelineGroupsByChapter(t *testing.T) {
	f := newLedgerFixture(t, 3)
	f.process(
		f.note(1, 1, ledger.TypeClassObtained, ledger.ClassObtained{ClassName: "Innkeeper"}),
		f.note(2, 1, ledger.TypeLevelUp, ledger.LevelUp{ClassName: "Innkeeper", Level: 3}),
		f.note(2, 2, ledger.TypeAbilityObtained, ledger.AbilityObtained{Name: "Basic Cooking", Kind: ledger.KindSkill}),
		f.note(3, 1, ledger.TypeAbilityRemoved, ledger.AbilityRemoved{Name: "Basic Cooking", Kind: ledger.KindSkill}),
	)
	asOf := 2
	tl, err := f.query.TimelineAsOf(f.dbc, f.erin.ID, &asOf)
	if err != nil {
		t.Fatalf("TimelineAsOf: %v", err)
	}
	if len(tl) != 2 || tl[0].ChapterOrder != 1 || tl[1].ChapterOrder != 2 {
		t.Fatalf("unexpected chapters %+v", tl)
	}
	if e := tl[1].Entries; len(e) != 2 || e[0].Kind != TimelineLevelUp || e[1].Kind != TimelineAbility {
		t.Fatalf("unexpected chapter 2 entries %+v", e)
	}
	full, err := f.query.TimelineAsOf(f.dbc, f.erin.ID, nil)
	if err != nil {
		t.Fatalf("TimelineAsOf(nil): %v", err)
	}
	if len(full) != 3 || full[2].Entries[0].Kind != TimelineRemoval {
		t.Fatalf("unexpected full timeline %+v", full)
	}
}

func TestAbilitiesRejectsUnknownKind(t *testing.T) {
	f := newLedgerFixture(t, 1)
	if _, err := f.query.AbilitiesAsOf(f.dbc, f.erin.ID, nil, "hat"); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected Validation, got %v", err)
	}
}
