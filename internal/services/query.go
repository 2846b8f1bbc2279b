package services

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

type ClassAsOf struct {
	ClassRecordID uuid.UUID `json:"class_record_id"`
	ClassName     string    `json:"class_name"`
	Level         *int      `json:"level"`
	ChapterID     uuid.UUID `json:"chapter_id"`
	ChapterOrder  int       `json:"chapter_order"`
}

type AbilityAsOf struct {
	AbilityID          uuid.UUID         `json:"ability_id"`
	Name               string            `json:"name"`
	Kind               types.AbilityKind `json:"kind"`
	ChapterID          uuid.UUID         `json:"chapter_id"`
	ChapterOrder       int               `json:"chapter_order"`
	ClassName          *string           `json:"class_name,omitempty"`
	LevelAtAcquisition *int              `json:"level_at_acquisition,omitempty"`
}

const (
	TimelineClassObtained = "class_obtained"
	TimelineLevelUp       = "level_up"
	TimelineAbility       = "ability_obtained"
	TimelineRemoval       = "removal"
)

type TimelineEntry struct {
	Kind        string                 `json:"kind"`
	Name        string                 `json:"name"`
	Level       *int                   `json:"level,omitempty"`
	AbilityKind types.AbilityKind      `json:"ability_kind,omitempty"`
	RemovalKind types.NotificationType `json:"removal_kind,omitempty"`
	ClassName   *string                `json:"class_name,omitempty"`
}

type TimelineChapter struct {
	ChapterID    uuid.UUID       `json:"chapter_id"`
	ChapterOrder int             `json:"chapter_order"`
	Entries      []TimelineEntry `json:"entries"`
}

// QueryService answers point-in-time questions about a character. A nil
// cutoff means no spoiler filtering.
type QueryService interface {
	ClassesAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff *int) ([]ClassAsOf, error)
	AbilitiesAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff *int, kind types.AbilityKind) ([]AbilityAsOf, error)
	TimelineAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff *int) ([]TimelineChapter, error)
}

type queryService struct {
	log   *logger.Logger
	repos *repos.Set
}

func NewQueryService(baseLog *logger.Logger, set *repos.Set) QueryService {
	return &queryService{log: baseLog.With("service", "QueryService"), repos: set}
}

func resolveCutoff(cutoff *int) int {
	if cutoff == nil {
		return math.MaxInt32
	}
	return *cutoff
}

func (s *queryService) ClassesAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff *int) (out []ClassAsOf, err error) {
	start := time.Now()
	c := resolveCutoff(cutoff)
	ctx, span := observability.StartSpan(dbc.Context(), "query.classes_as_of", attribute.Int("cutoff", c))
	defer func() {
		observability.EndSpan(span, err)
		observability.ObserveQuery("classes", time.Since(start))
	}()
	dbc.Ctx = ctx

	held, err := s.repos.Classes.IntervalsAsOf(dbc, characterID, c)
	if err != nil {
		return nil, apierr.Persistence("load class intervals", err)
	}
	ids := make([]uuid.UUID, 0, len(held))
	for _, iv := range held {
		ids = append(ids, iv.ID)
	}
	levels, err := s.repos.Levels.MaxLevelsAsOf(dbc, ids, c)
	if err != nil {
		return nil, apierr.Persistence("load levels", err)
	}

	byName := map[string]*ClassAsOf{}
	var order []string
	for _, iv := range held {
		var lvl *int
		if l, ok := levels[iv.ID]; ok {
			lvl = &l
		}
		cur, ok := byName[iv.NormalizedName]
		if !ok {
			byName[iv.NormalizedName] = &ClassAsOf{
				ClassRecordID: iv.ID,
				ClassName:     iv.ClassName,
				Level:         lvl,
				ChapterID:     iv.ChapterID,
				ChapterOrder:  iv.StartOrder,
			}
			order = append(order, iv.NormalizedName)
			continue
		}
		if lvl != nil && (cur.Level == nil || *lvl > *cur.Level) {
			cur.Level = lvl
		}
		if iv.StartOrder < cur.ChapterOrder {
			cur.ClassRecordID = iv.ID
			cur.ChapterID = iv.ChapterID
			cur.ChapterOrder = iv.StartOrder
		}
	}
	sort.Strings(order)
	out = make([]ClassAsOf, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (s *queryService) AbilitiesAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff *int, kind types.AbilityKind) (out []AbilityAsOf, err error) {
	if kind != "" && !kind.Valid() {
		return nil, apierr.Validation("unknown ability kind %q", string(kind))
	}
	start := time.Now()
	c := resolveCutoff(cutoff)
	ctx, span := observability.StartSpan(dbc.Context(), "query.abilities_as_of", attribute.Int("cutoff", c))
	defer func() {
		observability.EndSpan(span, err)
		observability.ObserveQuery("abilities", time.Since(start))
	}()
	dbc.Ctx = ctx

	rows, err := s.repos.Abilities.AcquisitionsAsOf(dbc, repos.AbilityQuery{
		CharacterID: characterID,
		Cutoff:      c,
		Kind:        kind,
		OccludedBy:  ledger.AbilityRemovalTypes,
	})
	if err != nil {
		return nil, apierr.Persistence("load abilities", err)
	}
	// rows arrive in chapter order, so the first visible acquisition wins
	seen := map[uuid.UUID]bool{}
	out = make([]AbilityAsOf, 0, len(rows))
	for _, r := range rows {
		if seen[r.AbilityID] {
			continue
		}
		seen[r.AbilityID] = true
		out = append(out, AbilityAsOf{
			AbilityID:          r.AbilityID,
			Name:               r.Name,
			Kind:               r.Kind,
			ChapterID:          r.ChapterID,
			ChapterOrder:       r.ChapterOrder,
			ClassName:          r.ClassName,
			LevelAtAcquisition: r.LevelAtAcquisition,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// timeline entry groups, in display order within a chapter
const (
	rankClass = iota
	rankLevel
	rankAbility
	rankRemoval
)

type rankedEntry struct {
	rank  int
	entry TimelineEntry
}

func (s *queryService) TimelineAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff *int) (out []TimelineChapter, err error) {
	start := time.Now()
	c := resolveCutoff(cutoff)
	ctx, span := observability.StartSpan(dbc.Context(), "query.timeline_as_of", attribute.Int("cutoff", c))
	defer func() {
		observability.EndSpan(span, err)
		observability.ObserveQuery("timeline", time.Since(start))
	}()
	dbc.Ctx = ctx

	classes, err := s.repos.Classes.StartedAsOf(dbc, characterID, c)
	if err != nil {
		return nil, apierr.Persistence("load classes", err)
	}
	levels, err := s.repos.Levels.ListAsOf(dbc, characterID, c)
	if err != nil {
		return nil, apierr.Persistence("load levels", err)
	}
	abilities, err := s.repos.Abilities.AcquisitionsAsOf(dbc, repos.AbilityQuery{CharacterID: characterID, Cutoff: c})
	if err != nil {
		return nil, apierr.Persistence("load abilities", err)
	}
	removals, err := s.repos.Removals.ListAsOf(dbc, characterID, c)
	if err != nil {
		return nil, apierr.Persistence("load removals", err)
	}

	chapters := map[int]*TimelineChapter{}
	ranked := map[int][]rankedEntry{}
	add := func(order int, chapterID uuid.UUID, rank int, e TimelineEntry) {
		if _, ok := chapters[order]; !ok {
			chapters[order] = &TimelineChapter{ChapterID: chapterID, ChapterOrder: order}
		}
		ranked[order] = append(ranked[order], rankedEntry{rank: rank, entry: e})
	}
	for _, iv := range classes {
		add(iv.StartOrder, iv.ChapterID, rankClass, TimelineEntry{Kind: TimelineClassObtained, Name: iv.ClassName})
	}
	for _, l := range levels {
		lvl := l.Level
		add(l.ChapterOrder, l.ChapterID, rankLevel, TimelineEntry{Kind: TimelineLevelUp, Name: l.ClassName, Level: &lvl})
	}
	for _, a := range abilities {
		add(a.ChapterOrder, a.ChapterID, rankAbility, TimelineEntry{
			Kind:        TimelineAbility,
			Name:        a.Name,
			AbilityKind: a.Kind,
			Level:       a.LevelAtAcquisition,
			ClassName:   a.ClassName,
		})
	}
	for _, r := range removals {
		add(r.ChapterOrder, r.ChapterID, rankRemoval, TimelineEntry{Kind: TimelineRemoval, Name: r.SubjectName, RemovalKind: r.Kind})
	}

	orders := make([]int, 0, len(chapters))
	for o := range chapters {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	out = make([]TimelineChapter, 0, len(orders))
	for _, o := range orders {
		entries := ranked[o]
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].rank != entries[j].rank {
				return entries[i].rank < entries[j].rank
			}
			if entries[i].entry.Name != entries[j].entry.Name {
				return entries[i].entry.Name < entries[j].entry.Name
			}
			return levelOf(entries[i].entry) < levelOf(entries[j].entry)
		})
		ch := chapters[o]
		ch.Entries = make([]TimelineEntry, 0, len(entries))
		for _, e := range entries {
			ch.Entries = append(ch.Entries, e.entry)
		}
		out = append(out, *ch)
	}
	return out, nil
}

func levelOf(e TimelineEntry) int {
	if e.Level == nil {
		return 0
	}
	return *e.Level
}
