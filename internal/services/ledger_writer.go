package services

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/extract"
	"github.com/yungbote/progressledger/internal/normalization"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

const (
	EffectClassRecord        = "class_record"
	EffectClassClosed        = "class_closed"
	EffectLevelRecord        = "level_record"
	EffectAbilityAcquisition = "ability_acquisition"
	EffectRemovalFact        = "removal_fact"
	EffectArchived           = "archived"
)

// Effect is one ledger row touched while processing a notification. Created
// is false when an earlier run already wrote the row.
type Effect struct {
	Kind    string    `json:"kind"`
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name,omitempty"`
	Created bool      `json:"created"`
}

type ProcessedNotification struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	Type           types.NotificationType `json:"type"`
	Effects        []Effect               `json:"effects"`
}

type ProcessFailure struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Code           string    `json:"code"`
	Error          string    `json:"error"`
}

type ProcessResult struct {
	ProcessedCount int                     `json:"processed_count"`
	FailedCount    int                     `json:"failed_count"`
	Results        []ProcessedNotification `json:"results"`
	Errors         []ProcessFailure        `json:"errors"`
}

type LedgerWriter interface {
	// Process commits each notification's ledger effects. Per-notification
	// failures are reported in the result and never abort siblings; the error
	// return is reserved for failures that affect the whole batch.
	Process(dbc dbctx.Context, notificationIDs []uuid.UUID) (*ProcessResult, error)
}

type ledgerWriter struct {
	db    *gorm.DB
	log   *logger.Logger
	repos *repos.Set
}

func NewLedgerWriter(db *gorm.DB, baseLog *logger.Logger, set *repos.Set) LedgerWriter {
	return &ledgerWriter{
		db:    db,
		log:   baseLog.With("service", "LedgerWriter"),
		repos: set,
	}
}

func (w *ledgerWriter) Process(dbc dbctx.Context, notificationIDs []uuid.UUID) (res *ProcessResult, err error) {
	ctx, span := observability.StartSpan(dbc.Context(), "ledger.process", attribute.Int("notification.count", len(notificationIDs)))
	defer func() { observability.EndSpan(span, err) }()
	dbc.Ctx = ctx

	ids := uniqueIDs(notificationIDs)
	if len(ids) == 0 {
		return nil, apierr.Validation("notification_ids required")
	}
	res = &ProcessResult{Results: []ProcessedNotification{}, Errors: []ProcessFailure{}}
	run := func(dbc dbctx.Context) error {
		rows, err := w.repos.Notifications.GetByIDs(dbc, ids)
		if err != nil {
			return apierr.Persistence("load notifications", err)
		}
		if len(rows) == 0 {
			return apierr.NotFound("none of the %d notifications exist", len(ids))
		}
		found := make(map[uuid.UUID]bool, len(rows))
		for _, n := range rows {
			found[n.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				res.fail(id, apierr.NotFound("notification %s not found", id))
			}
		}
		sortForReplay(rows)
		for _, n := range rows {
			w.processOne(dbc, n, res)
		}
		return nil
	}
	if dbc.Tx != nil {
		err = run(dbc)
	} else {
		err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return run(dbc.WithTx(tx))
		})
	}
	if err != nil {
		return nil, err
	}
	res.ProcessedCount = len(res.Results)
	res.FailedCount = len(res.Errors)
	span.SetAttributes(
		attribute.Int("notification.processed", res.ProcessedCount),
		attribute.Int("notification.failed", res.FailedCount),
	)
	w.log.Info("processed notifications", "processed", res.ProcessedCount, "failed", res.FailedCount)
	return res, nil
}

func (r *ProcessResult) fail(id uuid.UUID, err error) {
	r.Errors = append(r.Errors, ProcessFailure{NotificationID: id, Code: apierr.CodeOf(err), Error: errMessage(err)})
}

func errMessage(err error) string {
	if e, ok := apierr.As(err); ok && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}

// sortForReplay orders rows by chapter then position so supersessions see the
// facts that precede them in the narrative.
func sortForReplay(rows []*types.RawNotification) {
	order := func(n *types.RawNotification) int {
		if n.Chapter == nil {
			return 0
		}
		return n.Chapter.OrderIndex
	}
	sort.SliceStable(rows, func(i, j int) bool {
		oi, oj := order(rows[i]), order(rows[j])
		if oi != oj {
			return oi < oj
		}
		return rows[i].Position < rows[j].Position
	})
}

// processOne applies a single notification inside a savepoint. On failure the
// savepoint is rolled back and the error is stored on the row in the outer
// transaction so it survives for review.
func (w *ledgerWriter) processOne(dbc dbctx.Context, n *types.RawNotification, res *ProcessResult) {
	var effects []Effect
	err := dbc.Tx.Transaction(func(sp *gorm.DB) error {
		var err error
		effects, err = w.apply(dbc.WithTx(sp), n)
		return err
	})
	typeLabel := string(n.Type)
	if typeLabel == "" {
		typeLabel = "untyped"
	}
	if err != nil {
		if _, ok := apierr.As(err); !ok {
			err = apierr.Persistence("process notification", err)
		}
		res.fail(n.ID, err)
		observability.ObserveProcessed(typeLabel, "error")
		if _, uerr := w.repos.Notifications.UpdateFields(dbc, []uuid.UUID{n.ID}, map[string]interface{}{
			"process_error": errMessage(err),
		}); uerr != nil {
			w.log.Warn("record process error failed", "notification_id", n.ID, "error", uerr)
		}
		w.log.Debug("notification failed", "notification_id", n.ID, "type", n.Type, "error", err)
		return
	}
	if effects == nil {
		effects = []Effect{}
	}
	res.Results = append(res.Results, ProcessedNotification{NotificationID: n.ID, Type: n.Type, Effects: effects})
	observability.ObserveProcessed(typeLabel, "ok")
}

func (w *ledgerWriter) apply(dbc dbctx.Context, n *types.RawNotification) ([]Effect, error) {
	var fx []Effect
	done := map[string]interface{}{
		"processed":     true,
		"needs_review":  false,
		"processed_at":  nowUTC(),
		"process_error": "",
	}
	if n.Type == ledger.TypeFalsePositive {
		done["archived"] = true
		if _, err := w.repos.Notifications.UpdateFields(dbc, []uuid.UUID{n.ID}, done); err != nil {
			return nil, err
		}
		return append(fx, Effect{Kind: EffectArchived, ID: n.ID, Created: !n.Archived}), nil
	}
	if n.Archived {
		return nil, apierr.Validation("notification is archived")
	}
	if !n.Ready() {
		return nil, apierr.Validation("notification has no assigned character")
	}
	if n.Type == "" || n.Type == ledger.TypeOther || !n.Type.Valid() {
		return nil, apierr.Validation("unsupported notification type %q", string(n.Type))
	}
	if n.Chapter == nil {
		return nil, apierr.NotFound("chapter %s not found", n.ChapterID)
	}
	p, err := payloadFor(n)
	if err != nil {
		return nil, err
	}
	if err := w.write(dbc, n, p, &fx); err != nil {
		return nil, err
	}
	if _, err := w.repos.Notifications.UpdateFields(dbc, []uuid.UUID{n.ID}, done); err != nil {
		return nil, err
	}
	return fx, nil
}

// payloadFor decodes the stored fields, deriving them from the bracket text
// when none were recorded.
func payloadFor(n *types.RawNotification) (types.Payload, error) {
	var p types.Payload
	if s := strings.TrimSpace(string(n.Fields)); s != "" && s != "null" && s != "{}" {
		decoded, err := ledger.DecodePayload(n.Type, n.Fields, "")
		if err != nil {
			return nil, apierr.Extraction("%v", err)
		}
		p = decoded
	} else {
		g, ok := extract.Classify(n.RawText)
		if !ok {
			return nil, apierr.Extraction("no %s fields could be derived from %q", n.Type, n.RawText)
		}
		p = coerceGuess(n.Type, g)
		if p == nil {
			return nil, apierr.Extraction("text %q reads as %s, not %s", n.RawText, g.Type, n.Type)
		}
	}
	if err := ledger.ValidatePayload(p); err != nil {
		return nil, apierr.Extraction("%v", err)
	}
	return p, nil
}

// coerceGuess adapts a pattern guess to the notification's recorded type.
// "[Warrior Level 1!]" guesses class_obtained but is a valid level_up.
func coerceGuess(t types.NotificationType, g extract.Guess) types.Payload {
	if g.Type == t {
		return g.Payload
	}
	switch v := g.Payload.(type) {
	case ledger.ClassObtained:
		if t == ledger.TypeLevelUp && v.Level != nil {
			return ledger.LevelUp{ClassName: v.ClassName, Level: *v.Level}
		}
	case ledger.LevelUp:
		if t == ledger.TypeClassObtained {
			lvl := v.Level
			return ledger.ClassObtained{ClassName: v.ClassName, Level: &lvl}
		}
	case ledger.AbilityRemoved:
		if t == ledger.TypeSpellRemoved {
			return ledger.SpellRemoved{Name: v.Name}
		}
	case ledger.SpellRemoved:
		if t == ledger.TypeAbilityRemoved {
			return ledger.AbilityRemoved{Name: v.Name, Kind: ledger.KindSpell}
		}
	}
	return nil
}

func (w *ledgerWriter) write(dbc dbctx.Context, n *types.RawNotification, p types.Payload, fx *[]Effect) error {
	chapter := n.Chapter
	switch v := p.(type) {
	case ledger.ClassObtained:
		rec, err := w.obtainClass(dbc, n, v.ClassName, chapter, classLineage{}, fx)
		if err != nil {
			return err
		}
		if v.Level != nil {
			return w.recordLevel(dbc, n, rec.ID, *v.Level, chapter, fx)
		}
		return nil

	case ledger.LevelUp:
		return w.levelUp(dbc, n, v, chapter, fx)

	case ledger.ClassEvolution:
		affected, err := w.closeCovering(dbc, n, v.From, chapter, ledger.TypeClassEvolution, fx)
		if err != nil {
			return err
		}
		var lineage classLineage
		if prev, ok := latestStart(affected); ok {
			id := prev.ID
			lineage.evolvedFrom = &id
		}
		_, err = w.obtainClass(dbc, n, v.To, chapter, lineage, fx)
		return err

	case ledger.ClassConsolidation:
		into := normalization.NormalizeName(v.Into)
		var ids []uuid.UUID
		for _, from := range v.From {
			if into != "" && normalization.NormalizeName(from) == into {
				return apierr.Extraction("class %q cannot be consolidated into itself", v.Into)
			}
			affected, err := w.closeCovering(dbc, n, from, chapter, ledger.TypeClassConsolidation, fx)
			if err != nil {
				return err
			}
			for _, iv := range affected {
				ids = append(ids, iv.ID)
			}
		}
		if into == "" {
			return nil
		}
		_, err := w.obtainClass(dbc, n, v.Into, chapter, classLineage{consolidatedFrom: ids}, fx)
		return err

	case ledger.ClassRemoved:
		_, err := w.closeCovering(dbc, n, v.ClassName, chapter, ledger.TypeClassRemoved, fx)
		return err

	case ledger.AbilityObtained:
		return w.acquire(dbc, n, v.Name, v.Kind, v.ClassName, chapter, fx)

	case ledger.AbilityRemoved:
		return w.recordRemoval(dbc, n, v.Name, chapter, ledger.TypeAbilityRemoved, fx)

	case ledger.SpellRemoved:
		return w.recordRemoval(dbc, n, v.Name, chapter, ledger.TypeSpellRemoved, fx)

	case ledger.SkillChange:
		if err := w.recordRemoval(dbc, n, v.From, chapter, ledger.TypeSkillChange, fx); err != nil {
			return err
		}
		if strings.TrimSpace(v.To) == "" {
			return nil
		}
		return w.acquire(dbc, n, v.To, ledger.KindSkill, "", chapter, fx)

	case ledger.SkillConsolidation:
		for _, from := range v.From {
			if err := w.recordRemoval(dbc, n, from, chapter, ledger.TypeSkillConsolidation, fx); err != nil {
				return err
			}
		}
		if strings.TrimSpace(v.Into) == "" {
			return nil
		}
		return w.acquire(dbc, n, v.Into, ledger.KindSkill, "", chapter, fx)
	}
	return apierr.Validation("unsupported notification type %q", string(p.NotificationType()))
}

// levelUp attaches the level to the class record held at the chapter, opening
// one when the class was never announced.
func (w *ledgerWriter) levelUp(dbc dbctx.Context, n *types.RawNotification, v ledger.LevelUp, chapter *types.Chapter, fx *[]Effect) error {
	norm := normalization.NormalizeName(v.ClassName)
	if norm == "" {
		return apierr.Extraction("class name is empty")
	}
	intervals, err := w.repos.Classes.Intervals(dbc, *n.CharacterID, []string{norm})
	if err != nil {
		return err
	}
	var classID uuid.UUID
	if iv, ok := latestStart(covering(intervals, chapter.OrderIndex)); ok {
		classID = iv.ID
	} else {
		rec, err := w.obtainClass(dbc, n, v.ClassName, chapter, classLineage{}, fx)
		if err != nil {
			return err
		}
		classID = rec.ID
	}
	return w.recordLevel(dbc, n, classID, v.Level, chapter, fx)
}

func (w *ledgerWriter) recordLevel(dbc dbctx.Context, n *types.RawNotification, classID uuid.UUID, level int, chapter *types.Chapter, fx *[]Effect) error {
	out, created, err := w.repos.Levels.Upsert(dbc, &types.LevelRecord{
		ClassRecordID:        classID,
		ChapterID:            chapter.ID,
		Level:                level,
		SourceNotificationID: &n.ID,
	})
	if err != nil {
		return err
	}
	*fx = append(*fx, Effect{Kind: EffectLevelRecord, ID: out.ID, Created: created})
	return nil
}
