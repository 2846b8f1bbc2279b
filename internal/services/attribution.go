package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/extract"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

const DefaultAutoAcceptThreshold = 0.93

// Attribution is one classifier verdict for a notification.
type Attribution struct {
	NotificationID uuid.UUID       `json:"notification_id"`
	CharacterID    *uuid.UUID      `json:"character_id,omitempty"`
	Type           string          `json:"type"`
	Fields         json.RawMessage `json:"fields,omitempty"`
	Confidence     float64         `json:"confidence"`
	Rationale      string          `json:"rationale,omitempty"`
}

type AttributionService interface {
	Assign(dbc dbctx.Context, notificationIDs []uuid.UUID, characterID uuid.UUID) ([]*types.RawNotification, error)
	Unassign(dbc dbctx.Context, notificationID uuid.UUID) (*types.RawNotification, error)
	Classify(dbc dbctx.Context, notificationID uuid.UUID, notificationType string, fields json.RawMessage) (*types.RawNotification, error)
	AutoAttribute(dbc dbctx.Context, in Attribution) (*types.RawNotification, error)
	Archive(dbc dbctx.Context, notificationIDs []uuid.UUID) (int, error)
	Unarchive(dbc dbctx.Context, notificationIDs []uuid.UUID) (int, error)
	Get(dbc dbctx.Context, notificationID uuid.UUID) (*types.RawNotification, error)
	List(dbc dbctx.Context, f repos.NotificationFilter) ([]*types.RawNotification, int64, error)
	ReviewQueue(dbc dbctx.Context, limit, offset int) ([]*types.RawNotification, int64, error)
	Threshold() float64
}

type attributionService struct {
	db         *gorm.DB
	log        *logger.Logger
	notes      repos.RawNotificationRepo
	characters repos.CharacterRepo
	threshold  float64
}

func NewAttributionService(db *gorm.DB, baseLog *logger.Logger, notes repos.RawNotificationRepo, characters repos.CharacterRepo, threshold float64) AttributionService {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAutoAcceptThreshold
	}
	return &attributionService{
		db:         db,
		log:        baseLog.With("service", "AttributionService"),
		notes:      notes,
		characters: characters,
		threshold:  threshold,
	}
}

func (s *attributionService) Threshold() float64 { return s.threshold }

func (s *attributionService) inTx(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.WithContext(dbc.Context()).Transaction(func(tx *gorm.DB) error {
		return fn(dbc.WithTx(tx))
	})
}

// loadAll resolves every id or fails with NotFound naming the first missing one.
func (s *attributionService) loadAll(dbc dbctx.Context, ids []uuid.UUID) ([]*types.RawNotification, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, apierr.Validation("notification_ids required")
	}
	rows, err := s.notes.GetByIDs(dbc, ids)
	if err != nil {
		return nil, apierr.Persistence("load notifications", err)
	}
	found := make(map[uuid.UUID]*types.RawNotification, len(rows))
	for _, n := range rows {
		found[n.ID] = n
	}
	out := make([]*types.RawNotification, 0, len(ids))
	for _, id := range ids {
		n, ok := found[id]
		if !ok {
			return nil, apierr.NotFound("notification %s not found", id)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *attributionService) requireCharacter(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apierr.Validation("character_id required")
	}
	c, err := s.characters.GetByID(dbc, id)
	if err != nil {
		return apierr.Persistence("load character", err)
	}
	if c == nil {
		return apierr.NotFound("character %s not found", id)
	}
	return nil
}

func (s *attributionService) Assign(dbc dbctx.Context, notificationIDs []uuid.UUID, characterID uuid.UUID) ([]*types.RawNotification, error) {
	if len(notificationIDs) == 0 {
		return nil, apierr.Validation("notification_ids required")
	}
	var out []*types.RawNotification
	err := s.inTx(dbc, func(dbc dbctx.Context) error {
		if err := s.requireCharacter(dbc, characterID); err != nil {
			return err
		}
		rows, err := s.loadAll(dbc, notificationIDs)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, n := range rows {
			if n.Archived {
				return apierr.Validation("notification %s is archived", n.ID)
			}
			ids = append(ids, n.ID)
		}
		if _, err := s.notes.UpdateFields(dbc, ids, map[string]interface{}{
			"character_id":  characterID,
			"assigned":      true,
			"needs_review":  false,
			"attributed_by": ledger.AttributedManual,
			"process_error": "",
		}); err != nil {
			return apierr.Persistence("assign notifications", err)
		}
		out, err = s.loadAll(dbc, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.ObserveAttribution(ledger.AttributedManual, "assigned")
	s.log.Debug("notifications assigned", "count", len(out), "character_id", characterID)
	return out, nil
}

func (s *attributionService) Unassign(dbc dbctx.Context, notificationID uuid.UUID) (*types.RawNotification, error) {
	var out *types.RawNotification
	err := s.inTx(dbc, func(dbc dbctx.Context) error {
		rows, err := s.loadAll(dbc, []uuid.UUID{notificationID})
		if err != nil {
			return err
		}
		if _, err := s.notes.UpdateFields(dbc, []uuid.UUID{rows[0].ID}, map[string]interface{}{
			"character_id":  nil,
			"assigned":      false,
			"needs_review":  false,
			"attributed_by": "",
		}); err != nil {
			return apierr.Persistence("unassign notification", err)
		}
		out, err = s.notes.GetByID(dbc, notificationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.ObserveAttribution(ledger.AttributedManual, "unassigned")
	return out, nil
}

// decodeFields parses t and validates fields against it. Empty fields are
// derived from the raw text when the pattern rules agree on the type; a nil
// Payload with no error means no fields could be derived.
func decodeFields(rawType string, fields json.RawMessage, rawText string) (types.NotificationType, types.Payload, error) {
	t, kindHint, ok := ledger.ParseNotificationType(rawType)
	if !ok {
		return "", nil, apierr.Validation("unknown notification type %q", rawType)
	}
	if len(strings.TrimSpace(string(fields))) > 0 && strings.TrimSpace(string(fields)) != "null" {
		p, err := ledger.DecodePayload(t, fields, kindHint)
		if err != nil {
			return "", nil, apierr.Validation("%v", err)
		}
		if err := ledger.ValidatePayload(p); err != nil {
			return "", nil, apierr.Validation("%v", err)
		}
		return t, p, nil
	}
	switch t {
	case ledger.TypeFalsePositive, ledger.TypeOther:
		return t, nil, nil
	}
	if g, ok := extract.Classify(rawText); ok && g.Type == t {
		if ledger.ValidatePayload(g.Payload) == nil {
			return t, g.Payload, nil
		}
	}
	return t, nil, nil
}

func encodeFields(p types.Payload) (datatypes.JSON, error) {
	if p == nil {
		return nil, nil
	}
	js, err := ledger.EncodePayload(p)
	if err != nil {
		return nil, apierr.Validation("encode fields: %v", err)
	}
	return js, nil
}

func (s *attributionService) Classify(dbc dbctx.Context, notificationID uuid.UUID, notificationType string, fields json.RawMessage) (*types.RawNotification, error) {
	var out *types.RawNotification
	err := s.inTx(dbc, func(dbc dbctx.Context) error {
		rows, err := s.loadAll(dbc, []uuid.UUID{notificationID})
		if err != nil {
			return err
		}
		n := rows[0]
		t, p, err := decodeFields(notificationType, fields, n.RawText)
		if err != nil {
			return err
		}
		js, err := encodeFields(p)
		if err != nil {
			return err
		}
		if _, err := s.notes.UpdateFields(dbc, []uuid.UUID{n.ID}, map[string]interface{}{
			"type":          string(t),
			"fields":        js,
			"process_error": "",
		}); err != nil {
			return apierr.Persistence("classify notification", err)
		}
		out, err = s.notes.GetByID(dbc, n.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.ObserveAttribution(ledger.AttributedManual, "classified")
	return out, nil
}

func (s *attributionService) AutoAttribute(dbc dbctx.Context, in Attribution) (*types.RawNotification, error) {
	if in.NotificationID == uuid.Nil {
		return nil, apierr.Validation("notification_id required")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, apierr.Validation("confidence must be within [0, 1], got %v", in.Confidence)
	}
	var (
		out     *types.RawNotification
		outcome string
	)
	err := s.inTx(dbc, func(dbc dbctx.Context) error {
		rows, err := s.loadAll(dbc, []uuid.UUID{in.NotificationID})
		if err != nil {
			return err
		}
		n := rows[0]
		if n.Archived {
			return apierr.Validation("notification %s is archived", n.ID)
		}
		t, p, err := decodeFields(in.Type, in.Fields, n.RawText)
		if err != nil {
			return err
		}
		js, err := encodeFields(p)
		if err != nil {
			return err
		}
		confidence := in.Confidence
		rationale := strings.TrimSpace(in.Rationale)
		updates := map[string]interface{}{
			"type":          string(t),
			"fields":        js,
			"confidence":    confidence,
			"rationale":     rationale,
			"attributed_by": ledger.AttributedClassifier,
			"process_error": "",
		}
		switch {
		case in.CharacterID == nil || *in.CharacterID == uuid.Nil:
			updates["character_id"] = nil
			updates["assigned"] = false
			updates["needs_review"] = true
			outcome = "unattributed"
		default:
			if err := s.requireCharacter(dbc, *in.CharacterID); err != nil {
				return err
			}
			review := confidence < s.threshold || t == ledger.TypeFalsePositive
			updates["character_id"] = *in.CharacterID
			updates["assigned"] = true
			updates["needs_review"] = review
			outcome = "auto_accepted"
			if review {
				outcome = "needs_review"
			}
		}
		if _, err := s.notes.UpdateFields(dbc, []uuid.UUID{n.ID}, updates); err != nil {
			return apierr.Persistence("attribute notification", err)
		}
		out, err = s.notes.GetByID(dbc, n.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.ObserveAttribution(ledger.AttributedClassifier, outcome)
	s.log.Debug("notification attributed", "notification_id", in.NotificationID, "outcome", outcome, "confidence", in.Confidence)
	return out, nil
}

func (s *attributionService) Archive(dbc dbctx.Context, notificationIDs []uuid.UUID) (int, error) {
	var count int
	err := s.inTx(dbc, func(dbc dbctx.Context) error {
		rows, err := s.loadAll(dbc, notificationIDs)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, n := range rows {
			if n.Processed && !n.Archived {
				return apierr.Validation("notification %s is already processed", n.ID)
			}
			ids = append(ids, n.ID)
		}
		if _, err := s.notes.UpdateFields(dbc, ids, map[string]interface{}{"archived": true}); err != nil {
			return apierr.Persistence("archive notifications", err)
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	observability.ObserveAttribution(ledger.AttributedManual, "archived")
	return count, nil
}

// Unarchive returns notifications to Unassigned, clearing every workflow flag.
func (s *attributionService) Unarchive(dbc dbctx.Context, notificationIDs []uuid.UUID) (int, error) {
	var count int
	err := s.inTx(dbc, func(dbc dbctx.Context) error {
		rows, err := s.loadAll(dbc, notificationIDs)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, n := range rows {
			if n.Archived {
				ids = append(ids, n.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := s.notes.UpdateFields(dbc, ids, map[string]interface{}{
			"archived":      false,
			"processed":     false,
			"processed_at":  nil,
			"process_error": "",
			"assigned":      false,
			"needs_review":  false,
			"character_id":  nil,
			"attributed_by": "",
		}); err != nil {
			return apierr.Persistence("unarchive notifications", err)
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	observability.ObserveAttribution(ledger.AttributedManual, "unarchived")
	return count, nil
}

func (s *attributionService) Get(dbc dbctx.Context, notificationID uuid.UUID) (*types.RawNotification, error) {
	n, err := s.notes.GetByID(dbc, notificationID)
	if err != nil {
		return nil, apierr.Persistence("load notification", err)
	}
	if n == nil {
		return nil, apierr.NotFound("notification %s not found", notificationID)
	}
	return n, nil
}

func (s *attributionService) List(dbc dbctx.Context, f repos.NotificationFilter) ([]*types.RawNotification, int64, error) {
	switch f.Status {
	case "", repos.StatusUnassigned, repos.StatusNeedsReview, repos.StatusReady, repos.StatusProcessed, repos.StatusArchived:
	default:
		return nil, 0, apierr.Validation("unknown status %q", f.Status)
	}
	if f.ChapterFrom != nil && f.ChapterTo != nil && *f.ChapterFrom > *f.ChapterTo {
		return nil, 0, apierr.Validation("chapter_from must not exceed chapter_to")
	}
	rows, total, err := s.notes.List(dbc, f)
	if err != nil {
		return nil, 0, apierr.Persistence("list notifications", err)
	}
	return rows, total, nil
}

func (s *attributionService) ReviewQueue(dbc dbctx.Context, limit, offset int) ([]*types.RawNotification, int64, error) {
	return s.List(dbc, repos.NotificationFilter{
		Status:       repos.StatusNeedsReview,
		ByConfidence: true,
		Limit:        limit,
		Offset:       offset,
	})
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nowUTC() time.Time { return time.Now().UTC() }
