package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

// Listing statuses. Archived rows only ever show up under StatusArchived.
const (
	StatusUnassigned  = "unassigned"
	StatusNeedsReview = "needs_review"
	StatusReady       = "ready"
	StatusProcessed   = "processed"
	StatusArchived    = "archived"
)

type NotificationFilter struct {
	Status      string
	CharacterID *uuid.UUID
	ChapterFrom *int
	ChapterTo   *int
	// ByConfidence orders lowest confidence first (review queue).
	ByConfidence bool
	Limit        int
	Offset       int
}

type RawNotificationRepo interface {
	InsertCandidates(dbc dbctx.Context, rows []*types.RawNotification) (int64, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RawNotification, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.RawNotification, error)
	UpdateFields(dbc dbctx.Context, ids []uuid.UUID, updates map[string]interface{}) (int64, error)
	List(dbc dbctx.Context, f NotificationFilter) ([]*types.RawNotification, int64, error)
	ListReadyIDs(dbc dbctx.Context, limit int) ([]uuid.UUID, error)
	CountByStatus(dbc dbctx.Context, status string) (int64, error)
}

type rawNotificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawNotificationRepo(db *gorm.DB, baseLog *logger.Logger) RawNotificationRepo {
	return &rawNotificationRepo{db: db, log: baseLog.With("repo", "RawNotificationRepo")}
}

func (r *rawNotificationRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

// InsertCandidates stores extractor output. Rows whose (chapter_id, position)
// already exists are skipped so re-ingesting a chapter is a no-op.
func (r *rawNotificationRepo) InsertCandidates(dbc dbctx.Context, rows []*types.RawNotification) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for _, n := range rows {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
	}
	res := r.dbx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chapter_id"}, {Name: "position"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *rawNotificationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RawNotification, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var n types.RawNotification
	if err := r.dbx(dbc).Preload("Chapter").Where("id = ?", id).Limit(1).Find(&n).Error; err != nil {
		return nil, err
	}
	if n.ID == uuid.Nil {
		return nil, nil
	}
	return &n, nil
}

func (r *rawNotificationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.RawNotification, error) {
	var out []*types.RawNotification
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).Preload("Chapter").Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawNotificationRepo) UpdateFields(dbc dbctx.Context, ids []uuid.UUID, updates map[string]interface{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := r.dbx(dbc).
		Model(&types.RawNotification{}).
		Where("id IN ?", ids).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func applyStatus(q *gorm.DB, status string) *gorm.DB {
	switch status {
	case StatusUnassigned:
		return q.Where("rn.assigned = ? AND rn.archived = ? AND rn.processed = ?", false, false, false)
	case StatusNeedsReview:
		return q.Where("rn.assigned = ? AND rn.needs_review = ? AND rn.archived = ? AND rn.processed = ?", true, true, false, false)
	case StatusReady:
		return q.Where("rn.assigned = ? AND rn.needs_review = ? AND rn.archived = ? AND rn.processed = ? AND rn.character_id IS NOT NULL", true, false, false, false)
	case StatusProcessed:
		return q.Where("rn.processed = ? AND rn.archived = ?", true, false)
	case StatusArchived:
		return q.Where("rn.archived = ?", true)
	default:
		return q.Where("rn.archived = ?", false)
	}
}

func (r *rawNotificationRepo) List(dbc dbctx.Context, f NotificationFilter) ([]*types.RawNotification, int64, error) {
	q := r.dbx(dbc).
		Table("raw_notifications AS rn").
		Joins("JOIN chapters c ON c.id = rn.chapter_id")
	q = applyStatus(q, f.Status)
	if f.CharacterID != nil && *f.CharacterID != uuid.Nil {
		q = q.Where("rn.character_id = ?", *f.CharacterID)
	}
	if f.ChapterFrom != nil {
		q = q.Where("c.order_index >= ?", *f.ChapterFrom)
	}
	if f.ChapterTo != nil {
		q = q.Where("c.order_index <= ?", *f.ChapterTo)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.ByConfidence {
		q = q.Order("CASE WHEN rn.confidence IS NULL THEN 1 ELSE 0 END").Order("rn.confidence ASC")
	}
	q = q.Order("c.order_index ASC").Order("rn.position ASC")
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var ids []uuid.UUID
	if err := q.Limit(limit).Offset(f.Offset).Pluck("rn.id", &ids).Error; err != nil {
		return nil, 0, err
	}
	rows, err := r.GetByIDs(dbc, ids)
	if err != nil {
		return nil, 0, err
	}
	return orderLike(rows, ids), total, nil
}

// ListReadyIDs returns ready notifications in chapter, then position order.
func (r *rawNotificationRepo) ListReadyIDs(dbc dbctx.Context, limit int) ([]uuid.UUID, error) {
	q := r.dbx(dbc).
		Table("raw_notifications AS rn").
		Joins("JOIN chapters c ON c.id = rn.chapter_id")
	q = applyStatus(q, StatusReady).
		Where("(rn.process_error = '' OR rn.process_error IS NULL)").
		Order("c.order_index ASC").
		Order("rn.position ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []uuid.UUID
	if err := q.Pluck("rn.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *rawNotificationRepo) CountByStatus(dbc dbctx.Context, status string) (int64, error) {
	var n int64
	q := applyStatus(r.dbx(dbc).Table("raw_notifications AS rn"), status)
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func orderLike(rows []*types.RawNotification, ids []uuid.UUID) []*types.RawNotification {
	byID := make(map[uuid.UUID]*types.RawNotification, len(rows))
	for _, n := range rows {
		byID[n.ID] = n
	}
	out := make([]*types.RawNotification, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}
