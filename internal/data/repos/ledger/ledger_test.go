package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/data/repos/testutil"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
)

func TestChapterUpsertKeepsID(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewChapterRepo(db, testutil.Logger(t))

	first, err := repo.Upsert(dbc, &types.Chapter{OrderIndex: 3, Title: "Draft"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	second, err := repo.Upsert(dbc, &types.Chapter{OrderIndex: 3, Title: "Final", WordCount: 1200})
	if err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same id, got %s and %s", first.ID, second.ID)
	}
	if second.Title != "Final" || second.WordCount != 1200 {
		t.Fatalf("expected updated row, got %+v", second)
	}
	max, ok, err := repo.MaxOrderIndex(dbc)
	if err != nil || !ok || max != 3 {
		t.Fatalf("MaxOrderIndex=%d,%v,%v", max, ok, err)
	}
}

func TestInsertCandidatesIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewRawNotificationRepo(db, testutil.Logger(t))
	ch := testutil.SeedChapter(t, ctx, tx, 1)

	mk := func() []*types.RawNotification {
		return []*types.RawNotification{
			{ChapterID: ch.ID, Position: 10, RawText: "[Skill - Lesser Strength obtained!]"},
			{ChapterID: ch.ID, Position: 90, RawText: "[Innkeeper Level 2!]"},
		}
	}
	n, err := repo.InsertCandidates(dbc, mk())
	if err != nil || n != 2 {
		t.Fatalf("first insert n=%d err=%v", n, err)
	}
	n, err = repo.InsertCandidates(dbc, mk())
	if err != nil || n != 0 {
		t.Fatalf("second insert n=%d err=%v", n, err)
	}
	count, err := repo.CountByStatus(dbc, StatusUnassigned)
	if err != nil || count != 2 {
		t.Fatalf("unassigned count=%d err=%v", count, err)
	}
}

func TestListExcludesArchivedOutsideArchivedStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewRawNotificationRepo(db, testutil.Logger(t))
	chs := testutil.SeedChapters(t, ctx, tx, 2)
	hero := testutil.SeedCharacter(t, ctx, tx, "Erin")

	unassigned := testutil.SeedNotification(t, ctx, tx, chs[1], 1, "", nil, nil)
	archived := testutil.SeedNotification(t, ctx, tx, chs[1], 2, "", nil, nil)
	review := testutil.SeedNotification(t, ctx, tx, chs[2], 1, types.TypeLevelUp, nil, &hero.ID)
	if _, err := repo.UpdateFields(dbc, []uuid.UUID{archived.ID}, map[string]interface{}{"archived": true}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := repo.UpdateFields(dbc, []uuid.UUID{review.ID}, map[string]interface{}{"needs_review": true, "confidence": 0.4}); err != nil {
		t.Fatalf("flag review: %v", err)
	}

	rows, total, err := repo.List(dbc, NotificationFilter{Status: StatusUnassigned})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != unassigned.ID {
		t.Fatalf("unexpected unassigned listing total=%d rows=%d", total, len(rows))
	}

	rows, _, err = repo.List(dbc, NotificationFilter{Status: StatusNeedsReview, ByConfidence: true})
	if err != nil || len(rows) != 1 || rows[0].ID != review.ID {
		t.Fatalf("review listing rows=%d err=%v", len(rows), err)
	}

	rows, _, err = repo.List(dbc, NotificationFilter{})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	for _, r := range rows {
		if r.ID == archived.ID {
			t.Fatalf("archived row leaked into default listing")
		}
	}

	from := 2
	rows, _, err = repo.List(dbc, NotificationFilter{ChapterFrom: &from})
	if err != nil || len(rows) != 1 || rows[0].ID != review.ID {
		t.Fatalf("chapter range rows=%d err=%v", len(rows), err)
	}

	rows, _, err = repo.List(dbc, NotificationFilter{Status: StatusArchived})
	if err != nil || len(rows) != 1 || rows[0].ID != archived.ID {
		t.Fatalf("archived listing rows=%d err=%v", len(rows), err)
	}
}

func TestClassIntervalsAsOf(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	logg := testutil.Logger(t)
	classes := NewClassRecordRepo(db, logg)
	chs := testutil.SeedChapters(t, ctx, tx, 5)
	hero := testutil.SeedCharacter(t, ctx, tx, "Erin")

	warrior, created, err := classes.Upsert(dbc, &types.ClassRecord{
		CharacterID:    hero.ID,
		ClassName:      "Warrior",
		NormalizedName: "warrior",
		ChapterID:      chs[1].ID,
	})
	if err != nil || !created {
		t.Fatalf("Upsert created=%v err=%v", created, err)
	}
	again, created, err := classes.Upsert(dbc, &types.ClassRecord{
		CharacterID:    hero.ID,
		ClassName:      "Warrior",
		NormalizedName: "warrior",
		ChapterID:      chs[1].ID,
	})
	if err != nil || created || again.ID != warrior.ID {
		t.Fatalf("second Upsert should resolve existing row, created=%v err=%v", created, err)
	}

	if err := classes.Close(dbc, []uuid.UUID{warrior.ID}, chs[4].ID, types.TypeClassEvolution); err != nil {
		t.Fatalf("Close: %v", err)
	}

	at3, err := classes.IntervalsAsOf(dbc, hero.ID, 3)
	if err != nil || len(at3) != 1 || at3[0].ID != warrior.ID {
		t.Fatalf("expected warrior held at 3, got %v err=%v", at3, err)
	}
	at4, err := classes.IntervalsAsOf(dbc, hero.ID, 4)
	if err != nil || len(at4) != 0 {
		t.Fatalf("expected nothing held at 4, got %v err=%v", at4, err)
	}
	started, err := classes.StartedAsOf(dbc, hero.ID, 5)
	if err != nil || len(started) != 1 || started[0].EndOrder == nil || *started[0].EndOrder != 4 {
		t.Fatalf("expected closed interval ending at 4, got %v err=%v", started, err)
	}

	stored, err := classes.GetByID(dbc, warrior.ID)
	if err != nil || stored.Active {
		t.Fatalf("expected inactive record, got %+v err=%v", stored, err)
	}
}

func TestAbilityOcclusionQuery(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	logg := testutil.Logger(t)
	abilities := NewAbilityRepo(db, logg)
	removals := NewRemovalFactRepo(db, logg)
	chs := testutil.SeedChapters(t, ctx, tx, 10)
	hero := testutil.SeedCharacter(t, ctx, tx, "Pisces")

	entry, err := abilities.UpsertCatalog(dbc, &types.AbilityCatalogEntry{Name: "Fireball", NormalizedName: "fireball", Kind: types.KindSpell})
	if err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}
	dup, err := abilities.UpsertCatalog(dbc, &types.AbilityCatalogEntry{Name: "FIREBALL", NormalizedName: "fireball", Kind: types.KindSpell})
	if err != nil || dup.ID != entry.ID || dup.Name != "Fireball" {
		t.Fatalf("catalog dedup failed: %+v err=%v", dup, err)
	}
	if _, _, err := abilities.UpsertAcquisition(dbc, &types.AbilityAcquisition{CharacterID: hero.ID, AbilityID: entry.ID, ChapterID: chs[2].ID}); err != nil {
		t.Fatalf("UpsertAcquisition: %v", err)
	}
	if _, err := removals.Upsert(dbc, &types.RemovalFact{CharacterID: hero.ID, SubjectName: "Fireball", SubjectNormalized: "fireball", ChapterID: chs[7].ID, Kind: types.TypeSpellRemoved}); err != nil {
		t.Fatalf("Upsert removal: %v", err)
	}

	q := AbilityQuery{CharacterID: hero.ID, Cutoff: 5, OccludedBy: types.AbilityRemovalTypes}
	visible, err := abilities.AcquisitionsAsOf(dbc, q)
	if err != nil || len(visible) != 1 || visible[0].Name != "Fireball" || visible[0].ChapterOrder != 2 {
		t.Fatalf("expected fireball at 5, got %v err=%v", visible, err)
	}
	q.Cutoff = 9
	visible, err = abilities.AcquisitionsAsOf(dbc, q)
	if err != nil || len(visible) != 0 {
		t.Fatalf("expected fireball occluded at 9, got %v err=%v", visible, err)
	}
	q.OccludedBy = nil
	all, err := abilities.AcquisitionsAsOf(dbc, q)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected raw acquisition listing, got %v err=%v", all, err)
	}

	first, err := removals.EarliestAtOrAfter(dbc, hero.ID, "fireball", []types.NotificationType{types.TypeSpellRemoved}, 3)
	if err != nil || first == nil || first.ChapterOrder != 7 {
		t.Fatalf("EarliestAtOrAfter=%v err=%v", first, err)
	}
}
