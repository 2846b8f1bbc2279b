package ledger

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

type LevelEntry struct {
	ID             uuid.UUID
	ClassRecordID  uuid.UUID
	ClassName      string
	NormalizedName string
	Level          int
	ChapterID      uuid.UUID
	ChapterOrder   int
}

type LevelRecordRepo interface {
	Upsert(dbc dbctx.Context, rec *types.LevelRecord) (*types.LevelRecord, bool, error)
	MaxLevelsAsOf(dbc dbctx.Context, classRecordIDs []uuid.UUID, cutoff int) (map[uuid.UUID]int, error)
	ListAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]LevelEntry, error)
}

type levelRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLevelRecordRepo(db *gorm.DB, baseLog *logger.Logger) LevelRecordRepo {
	return &levelRecordRepo{db: db, log: baseLog.With("repo", "LevelRecordRepo")}
}

func (r *levelRecordRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

func (r *levelRecordRepo) Upsert(dbc dbctx.Context, rec *types.LevelRecord) (*types.LevelRecord, bool, error) {
	if rec == nil {
		return nil, false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	res := r.dbx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class_record_id"}, {Name: "chapter_id"}, {Name: "level"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	var out types.LevelRecord
	err := r.dbx(dbc).
		Where("class_record_id = ? AND chapter_id = ? AND level = ?", rec.ClassRecordID, rec.ChapterID, rec.Level).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, false, err
	}
	return &out, res.RowsAffected > 0, nil
}

// MaxLevelsAsOf returns, per class record, the highest level reported at a
// chapter at or before cutoff. Records without such a level are absent.
func (r *levelRecordRepo) MaxLevelsAsOf(dbc dbctx.Context, classRecordIDs []uuid.UUID, cutoff int) (map[uuid.UUID]int, error) {
	out := map[uuid.UUID]int{}
	if len(classRecordIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ClassRecordID uuid.UUID
		Level         int
	}
	err := r.dbx(dbc).
		Table("level_records AS lr").
		Select("lr.class_record_id AS class_record_id, MAX(lr.level) AS level").
		Joins("JOIN chapters c ON c.id = lr.chapter_id").
		Where("lr.class_record_id IN ?", classRecordIDs).
		Where("c.order_index <= ?", cutoff).
		Group("lr.class_record_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ClassRecordID] = row.Level
	}
	return out, nil
}

func (r *levelRecordRepo) ListAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]LevelEntry, error) {
	var out []LevelEntry
	err := r.dbx(dbc).
		Table("level_records AS lr").
		Select(`lr.id AS id,
			lr.class_record_id AS class_record_id,
			cr.class_name AS class_name,
			cr.normalized_name AS normalized_name,
			lr.level AS level,
			lr.chapter_id AS chapter_id,
			c.order_index AS chapter_order`).
		Joins("JOIN class_records cr ON cr.id = lr.class_record_id").
		Joins("JOIN chapters c ON c.id = lr.chapter_id").
		Where("cr.character_id = ?", characterID).
		Where("c.order_index <= ?", cutoff).
		Order("c.order_index ASC").
		Order("cr.normalized_name ASC").
		Order("lr.level ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
