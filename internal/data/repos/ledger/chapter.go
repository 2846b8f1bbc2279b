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

type ChapterRepo interface {
	Upsert(dbc dbctx.Context, ch *types.Chapter) (*types.Chapter, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	GetByOrderIndex(dbc dbctx.Context, orderIndex int) (*types.Chapter, error)
	List(dbc dbctx.Context, limit, offset int) ([]*types.Chapter, error)
	MaxOrderIndex(dbc dbctx.Context) (int, bool, error)
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{db: db, log: baseLog.With("repo", "ChapterRepo")}
}

func (r *chapterRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

// Upsert keys on order_index; a re-fetched chapter keeps its id.
func (r *chapterRepo) Upsert(dbc dbctx.Context, ch *types.Chapter) (*types.Chapter, error) {
	if ch == nil {
		return nil, nil
	}
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	now := time.Now()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now
	err := r.dbx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_id", "title", "url", "word_count", "published_at", "updated_at"}),
	}).Create(ch).Error
	if err != nil {
		return nil, err
	}
	return r.GetByOrderIndex(dbc, ch.OrderIndex)
}

func (r *chapterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ch types.Chapter
	if err := r.dbx(dbc).Where("id = ?", id).Limit(1).Find(&ch).Error; err != nil {
		return nil, err
	}
	if ch.ID == uuid.Nil {
		return nil, nil
	}
	return &ch, nil
}

func (r *chapterRepo) GetByOrderIndex(dbc dbctx.Context, orderIndex int) (*types.Chapter, error) {
	var ch types.Chapter
	if err := r.dbx(dbc).Where("order_index = ?", orderIndex).Limit(1).Find(&ch).Error; err != nil {
		return nil, err
	}
	if ch.ID == uuid.Nil {
		return nil, nil
	}
	return &ch, nil
}

func (r *chapterRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.Chapter, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Chapter
	err := r.dbx(dbc).
		Order("order_index ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterRepo) MaxOrderIndex(dbc dbctx.Context) (int, bool, error) {
	var row struct {
		Max *int
	}
	if err := r.dbx(dbc).Model(&types.Chapter{}).Select("MAX(order_index) AS max").Scan(&row).Error; err != nil {
		return 0, false, err
	}
	if row.Max == nil {
		return 0, false, nil
	}
	return *row.Max, true, nil
}
