package ledger

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

type RemovalEntry struct {
	ID                uuid.UUID
	SubjectName       string
	SubjectNormalized string
	Kind              types.NotificationType
	ChapterID         uuid.UUID
	ChapterOrder      int
}

type RemovalFactRepo interface {
	Upsert(dbc dbctx.Context, rf *types.RemovalFact) (bool, error)
	EarliestAtOrAfter(dbc dbctx.Context, characterID uuid.UUID, normalized string, kinds []types.NotificationType, order int) (*RemovalEntry, error)
	ListAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]RemovalEntry, error)
}

type removalFactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRemovalFactRepo(db *gorm.DB, baseLog *logger.Logger) RemovalFactRepo {
	return &removalFactRepo{db: db, log: baseLog.With("repo", "RemovalFactRepo")}
}

func (r *removalFactRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

func (r *removalFactRepo) Upsert(dbc dbctx.Context, rf *types.RemovalFact) (bool, error) {
	if rf == nil {
		return false, nil
	}
	if rf.ID == uuid.Nil {
		rf.ID = uuid.New()
	}
	res := r.dbx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "character_id"}, {Name: "subject_normalized"}, {Name: "chapter_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(rf)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *removalFactRepo) base(dbc dbctx.Context, characterID uuid.UUID) *gorm.DB {
	return r.dbx(dbc).
		Table("removal_facts AS rf").
		Select(`rf.id AS id,
			rf.subject_name AS subject_name,
			rf.subject_normalized AS subject_normalized,
			rf.kind AS kind,
			rf.chapter_id AS chapter_id,
			c.order_index AS chapter_order`).
		Joins("JOIN chapters c ON c.id = rf.chapter_id").
		Where("rf.character_id = ?", characterID)
}

// EarliestAtOrAfter finds the first removal of subject at or after order.
func (r *removalFactRepo) EarliestAtOrAfter(dbc dbctx.Context, characterID uuid.UUID, normalized string, kinds []types.NotificationType, order int) (*RemovalEntry, error) {
	q := r.base(dbc, characterID).
		Where("rf.subject_normalized = ?", normalized).
		Where("c.order_index >= ?", order)
	if len(kinds) > 0 {
		q = q.Where("rf.kind IN ?", kindStrings(kinds))
	}
	var out []RemovalEntry
	if err := q.Order("c.order_index ASC").Limit(1).Scan(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (r *removalFactRepo) ListAsOf(dbc dbctx.Context, characterID uuid.UUID, cutoff int) ([]RemovalEntry, error) {
	var out []RemovalEntry
	err := r.base(dbc, characterID).
		Where("c.order_index <= ?", cutoff).
		Order("c.order_index ASC").
		Order("rf.subject_normalized ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func kindStrings(kinds []types.NotificationType) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}
