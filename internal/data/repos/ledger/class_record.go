package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

// ClassInterval is a class record with its validity bounds resolved to
// chapter order indexes. EndOrder is nil while the record is open.
type ClassInterval struct {
	ID             uuid.UUID
	ClassName      string
	NormalizedName string
	ChapterID      uuid.UUID
	StartOrder     int
	EndedChapterID *uuid.UUID
	EndOrder       *int
	EvolvedFromID  *uuid.UUID
}

// CoversOrder reports whether the record was held at order.
func (c ClassInterval) CoversOrder(order int) bool {
	return c.StartOrder <= order && (c.EndOrder == nil || *c.EndOrder > order)
}

type ClassRecordRepo interface {
	Upsert(dbc dbctx.Context, rec *types.ClassRecord) (*types.ClassRecord, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ClassRecord, error)
	ListByCharacter(dbc dbctx.Context, characterID uuid.UUID) ([]*types.ClassRecord, error)
	Intervals(dbc dbctx.Context, characterID uuid.UUID, normalizedNames []string) ([]ClassInterval, error)
	IntervalsAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]ClassInterval, error)
	StartedAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]ClassInterval, error)
	Close(dbc dbctx.Context, ids []uuid.UUID, endedChapterID uuid.UUID, endedBy types.NotificationType) error
	SetLineage(dbc dbctx.Context, id uuid.UUID, evolvedFromID *uuid.UUID, consolidatedFrom []uuid.UUID) error
}

type classRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClassRecordRepo(db *gorm.DB, baseLog *logger.Logger) ClassRecordRepo {
	return &classRecordRepo{db: db, log: baseLog.With("repo", "ClassRecordRepo")}
}

func (r *classRecordRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

// Upsert inserts the record unless (character, normalized name, chapter)
// already exists, and returns the stored row either way. The bool reports
// whether a new row was written.
func (r *classRecordRepo) Upsert(dbc dbctx.Context, rec *types.ClassRecord) (*types.ClassRecord, bool, error) {
	if rec == nil {
		return nil, false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Active = rec.EndedChapterID == nil
	res := r.dbx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "character_id"}, {Name: "normalized_name"}, {Name: "chapter_id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	var out types.ClassRecord
	err := r.dbx(dbc).
		Where("character_id = ? AND normalized_name = ? AND chapter_id = ?", rec.CharacterID, rec.NormalizedName, rec.ChapterID).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, false, err
	}
	return &out, res.RowsAffected > 0, nil
}

func (r *classRecordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ClassRecord, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.ClassRecord
	if err := r.dbx(dbc).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *classRecordRepo) ListByCharacter(dbc dbctx.Context, characterID uuid.UUID) ([]*types.ClassRecord, error) {
	var out []*types.ClassRecord
	err := r.dbx(dbc).
		Table("class_records AS cr").
		Select("cr.*").
		Joins("JOIN chapters c ON c.id = cr.chapter_id").
		Where("cr.character_id = ?", characterID).
		Order("c.order_index ASC").
		Order("cr.normalized_name ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *classRecordRepo) intervalQuery(dbc dbctx.Context, characterID uuid.UUID) *gorm.DB {
	return r.dbx(dbc).
		Table("class_records AS cr").
		Select(`cr.id AS id,
			cr.class_name AS class_name,
			cr.normalized_name AS normalized_name,
			cr.chapter_id AS chapter_id,
			c.order_index AS start_order,
			cr.ended_chapter_id AS ended_chapter_id,
			e.order_index AS end_order,
			cr.evolved_from_id AS evolved_from_id`).
		Joins("JOIN chapters c ON c.id = cr.chapter_id").
		Joins("LEFT JOIN chapters e ON e.id = cr.ended_chapter_id").
		Where("cr.character_id = ?", characterID)
}

// Intervals lists the character's records, optionally restricted to names,
// ordered by start chapter.
func (r *classRecordRepo) Intervals(dbc dbctx.Context, characterID uuid.UUID, normalizedNames []string) ([]ClassInterval, error) {
	q := r.intervalQuery(dbc, characterID)
	if len(normalizedNames) > 0 {
		q = q.Where("cr.normalized_name IN ?", normalizedNames)
	}
	var out []ClassInterval
	if err := q.Order("c.order_index ASC").Order("cr.normalized_name ASC").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// IntervalsAsOf returns the records held at cutoff: started at or before it
// and not ended at or before it.
func (r *classRecordRepo) IntervalsAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]ClassInterval, error) {
	var out []ClassInterval
	err := r.intervalQuery(dbc, characterID).
		Where("c.order_index <= ?", cutoff).
		Where("(e.id IS NULL OR e.order_index > ?)", cutoff).
		Order("c.order_index ASC").
		Order("cr.normalized_name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StartedAsOf returns every record started at or before cutoff, held or not.
func (r *classRecordRepo) StartedAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]ClassInterval, error) {
	var out []ClassInterval
	err := r.intervalQuery(dbc, characterID).
		Where("c.order_index <= ?", cutoff).
		Order("c.order_index ASC").
		Order("cr.normalized_name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *classRecordRepo) Close(dbc dbctx.Context, ids []uuid.UUID, endedChapterID uuid.UUID, endedBy types.NotificationType) error {
	if len(ids) == 0 {
		return nil
	}
	return r.dbx(dbc).
		Model(&types.ClassRecord{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"active":           false,
			"ended_chapter_id": endedChapterID,
			"ended_by":         string(endedBy),
			"updated_at":       time.Now(),
		}).Error
}

// SetLineage fills lineage links that are still empty; existing links win.
func (r *classRecordRepo) SetLineage(dbc dbctx.Context, id uuid.UUID, evolvedFromID *uuid.UUID, consolidatedFrom []uuid.UUID) error {
	rec, err := r.GetByID(dbc, id)
	if err != nil || rec == nil {
		return err
	}
	updates := map[string]interface{}{}
	if evolvedFromID != nil && rec.EvolvedFromID == nil {
		updates["evolved_from_id"] = *evolvedFromID
	}
	if len(consolidatedFrom) > 0 && len(rec.ConsolidatedFromIDs()) == 0 {
		js, err := jsonIDs(consolidatedFrom)
		if err != nil {
			return err
		}
		updates["consolidated_from"] = js
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()
	return r.dbx(dbc).Model(&types.ClassRecord{}).Where("id = ?", id).Updates(updates).Error
}

func jsonIDs(ids []uuid.UUID) (datatypes.JSON, error) {
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
