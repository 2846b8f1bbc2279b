package services

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/normalization"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
)

// classSupersessionKinds are the removal kinds that end a class record.
var classSupersessionKinds = []types.NotificationType{
	ledger.TypeClassEvolution,
	ledger.TypeClassConsolidation,
	ledger.TypeClassRemoved,
}

type classLineage struct {
	evolvedFrom      *uuid.UUID
	consolidatedFrom []uuid.UUID
}

// latestStart picks the interval with the greatest start order, breaking ties
// by normalized name so the choice is stable.
func latestStart(in []repos.ClassInterval) (repos.ClassInterval, bool) {
	if len(in) == 0 {
		return repos.ClassInterval{}, false
	}
	sorted := append([]repos.ClassInterval(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartOrder != sorted[j].StartOrder {
			return sorted[i].StartOrder > sorted[j].StartOrder
		}
		return sorted[i].NormalizedName < sorted[j].NormalizedName
	})
	return sorted[0], true
}

func covering(in []repos.ClassInterval, order int) []repos.ClassInterval {
	out := make([]repos.ClassInterval, 0, len(in))
	for _, iv := range in {
		if iv.CoversOrder(order) {
			out = append(out, iv)
		}
	}
	return out
}

// obtainClass upserts the class record starting at chapter. When a class
// supersession for the same name was already committed at or after the
// chapter, the record is created closed at that supersession.
func (w *ledgerWriter) obtainClass(dbc dbctx.Context, n *types.RawNotification, name string, chapter *types.Chapter, lineage classLineage, fx *[]Effect) (*types.ClassRecord, error) {
	norm := normalization.NormalizeName(name)
	if norm == "" {
		return nil, apierr.Extraction("class name is empty")
	}
	rec := &types.ClassRecord{
		CharacterID:          *n.CharacterID,
		ClassName:            normalization.CleanDisplay(name),
		NormalizedName:       norm,
		ChapterID:            chapter.ID,
		EvolvedFromID:        lineage.evolvedFrom,
		SourceNotificationID: &n.ID,
	}
	if len(lineage.consolidatedFrom) > 0 {
		js, err := json.Marshal(lineage.consolidatedFrom)
		if err != nil {
			return nil, err
		}
		rec.ConsolidatedFrom = datatypes.JSON(js)
	}
	later, err := w.repos.Removals.EarliestAtOrAfter(dbc, rec.CharacterID, norm, classSupersessionKinds, chapter.OrderIndex)
	if err != nil {
		return nil, err
	}
	if later != nil {
		ended := later.ChapterID
		rec.EndedChapterID = &ended
		rec.EndedBy = later.Kind
	}
	out, created, err := w.repos.Classes.Upsert(dbc, rec)
	if err != nil {
		return nil, err
	}
	if !created && (lineage.evolvedFrom != nil || len(lineage.consolidatedFrom) > 0) {
		if err := w.repos.Classes.SetLineage(dbc, out.ID, lineage.evolvedFrom, lineage.consolidatedFrom); err != nil {
			return nil, err
		}
	}
	*fx = append(*fx, Effect{Kind: EffectClassRecord, ID: out.ID, Name: out.ClassName, Created: created})
	return out, nil
}

// closeCovering ends every open record of name that started at or before the
// chapter and records the supersession as a removal fact. It returns the
// records that were held at the chapter, including ones an earlier replay of
// the same supersession already closed.
func (w *ledgerWriter) closeCovering(dbc dbctx.Context, n *types.RawNotification, name string, chapter *types.Chapter, kind types.NotificationType, fx *[]Effect) ([]repos.ClassInterval, error) {
	norm := normalization.NormalizeName(name)
	if norm == "" {
		return nil, apierr.Extraction("class name is empty")
	}
	charID := *n.CharacterID
	intervals, err := w.repos.Classes.Intervals(dbc, charID, []string{norm})
	if err != nil {
		return nil, err
	}
	s := chapter.OrderIndex
	var (
		affected []repos.ClassInterval
		toClose  []uuid.UUID
	)
	for _, iv := range intervals {
		if iv.StartOrder > s {
			continue
		}
		if iv.EndOrder != nil && *iv.EndOrder < s {
			continue
		}
		affected = append(affected, iv)
		if iv.EndOrder == nil || *iv.EndOrder > s {
			toClose = append(toClose, iv.ID)
		}
	}
	if err := w.repos.Classes.Close(dbc, toClose, chapter.ID, kind); err != nil {
		return nil, err
	}
	for _, id := range toClose {
		*fx = append(*fx, Effect{Kind: EffectClassClosed, ID: id, Name: normalization.CleanDisplay(name), Created: true})
	}
	if err := w.recordRemoval(dbc, n, name, chapter, kind, fx); err != nil {
		return nil, err
	}
	return affected, nil
}

func (w *ledgerWriter) recordRemoval(dbc dbctx.Context, n *types.RawNotification, name string, chapter *types.Chapter, kind types.NotificationType, fx *[]Effect) error {
	norm := normalization.NormalizeName(name)
	if norm == "" {
		return apierr.Extraction("%s subject is empty", kind)
	}
	rf := &types.RemovalFact{
		CharacterID:          *n.CharacterID,
		SubjectName:          normalization.CleanDisplay(name),
		SubjectNormalized:    norm,
		ChapterID:            chapter.ID,
		Kind:                 kind,
		SourceNotificationID: &n.ID,
	}
	created, err := w.repos.Removals.Upsert(dbc, rf)
	if err != nil {
		return err
	}
	*fx = append(*fx, Effect{Kind: EffectRemovalFact, Name: rf.SubjectName, Created: created})
	return nil
}

// acquire records an ability for the character at the chapter, linking the
// class held there and its level at that point.
func (w *ledgerWriter) acquire(dbc dbctx.Context, n *types.RawNotification, name string, kind types.AbilityKind, className string, chapter *types.Chapter, fx *[]Effect) error {
	norm := normalization.NormalizeName(name)
	if norm == "" {
		return apierr.Extraction("ability name is empty")
	}
	if kind == "" {
		kind = ledger.KindOther
	}
	entry, err := w.repos.Abilities.UpsertCatalog(dbc, &types.AbilityCatalogEntry{
		Name:           normalization.CleanDisplay(name),
		NormalizedName: norm,
		Kind:           kind,
	})
	if err != nil {
		return err
	}
	charID := *n.CharacterID
	acq := &types.AbilityAcquisition{
		CharacterID:          charID,
		AbilityID:            entry.ID,
		ChapterID:            chapter.ID,
		SourceNotificationID: &n.ID,
	}
	held, err := w.repos.Classes.IntervalsAsOf(dbc, charID, chapter.OrderIndex)
	if err != nil {
		return err
	}
	if want := normalization.NormalizeName(className); want != "" {
		var named []repos.ClassInterval
		for _, iv := range held {
			if iv.NormalizedName == want {
				named = append(named, iv)
			}
		}
		if len(named) > 0 {
			held = named
		}
	}
	if cls, ok := latestStart(held); ok {
		id := cls.ID
		acq.ClassRecordID = &id
		levels, err := w.repos.Levels.MaxLevelsAsOf(dbc, []uuid.UUID{id}, chapter.OrderIndex)
		if err != nil {
			return err
		}
		if lvl, ok := levels[id]; ok {
			acq.LevelAtAcquisition = &lvl
		}
	}
	out, created, err := w.repos.Abilities.UpsertAcquisition(dbc, acq)
	if err != nil {
		return err
	}
	*fx = append(*fx, Effect{Kind: EffectAbilityAcquisition, ID: out.ID, Name: entry.Name, Created: created})
	return nil
}
