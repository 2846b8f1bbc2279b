package ledger

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

type AbilityEntry struct {
	AcquisitionID      uuid.UUID
	AbilityID          uuid.UUID
	Name               string
	NormalizedName     string
	Kind               types.AbilityKind
	ChapterID          uuid.UUID
	ChapterOrder       int
	ClassRecordID      *uuid.UUID
	ClassName          *string
	LevelAtAcquisition *int
}

type AbilityQuery struct {
	CharacterID uuid.UUID
	Cutoff      int
	Kind        types.AbilityKind
	// OccludedBy, when set, hides acquisitions followed by a removal of one of
	// these kinds in [acquisition chapter, Cutoff].
	OccludedBy []types.NotificationType
}

type AbilityRepo interface {
	UpsertCatalog(dbc dbctx.Context, entry *types.AbilityCatalogEntry) (*types.AbilityCatalogEntry, error)
	UpsertAcquisition(dbc dbctx.Context, acq *types.AbilityAcquisition) (*types.AbilityAcquisition, bool, error)
	CountAcquisitions(dbc dbctx.Context, characterID uuid.UUID) (int64, error)
	AcquisitionsAsOf(dbc dbctx.Context, q AbilityQuery) ([]AbilityEntry, error)
}

type abilityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAbilityRepo(db *gorm.DB, baseLog *logger.Logger) AbilityRepo {
	return &abilityRepo{db: db, log: baseLog.With("repo", "AbilityRepo")}
}

func (r *abilityRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

// UpsertCatalog resolves the (normalized name, kind) entry, creating it on
// first sighting. The first display name seen is kept.
func (r *abilityRepo) UpsertCatalog(dbc dbctx.Context, entry *types.AbilityCatalogEntry) (*types.AbilityCatalogEntry, error) {
	if entry == nil {
		return nil, nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	err := r.dbx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_name"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(entry).Error
	if err != nil {
		return nil, err
	}
	var out types.AbilityCatalogEntry
	err = r.dbx(dbc).
		Where("normalized_name = ? AND kind = ?", entry.NormalizedName, entry.Kind).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *abilityRepo) UpsertAcquisition(dbc dbctx.Context, acq *types.AbilityAcquisition) (*types.AbilityAcquisition, bool, error) {
	if acq == nil {
		return nil, false, nil
	}
	if acq.ID == uuid.Nil {
		acq.ID = uuid.New()
	}
	res := r.dbx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "character_id"}, {Name: "ability_id"}, {Name: "chapter_id"}},
		DoNothing: true,
	}).Create(acq)
	if res.Error != nil {
		return nil, false, res.Error
	}
	var out types.AbilityAcquisition
	err := r.dbx(dbc).
		Where("character_id = ? AND ability_id = ? AND chapter_id = ?", acq.CharacterID, acq.AbilityID, acq.ChapterID).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, false, err
	}
	return &out, res.RowsAffected > 0, nil
}

func (r *abilityRepo) CountAcquisitions(dbc dbctx.Context, characterID uuid.UUID) (int64, error) {
	var n int64
	err := r.dbx(dbc).Model(&types.AbilityAcquisition{}).Where("character_id = ?", characterID).Count(&n).Error
	return n, err
}

// AcquisitionsAsOf lists acquisitions at or before the cutoff, ordered by
// chapter then normalized name.
func (r *abilityRepo) AcquisitionsAsOf(dbc dbctx.Context, q AbilityQuery) ([]AbilityEntry, error) {
	tx := r.dbx(dbc).
		Table("ability_acquisitions AS aa").
		Select(`aa.id AS acquisition_id,
			aa.ability_id AS ability_id,
			ac.name AS name,
			ac.normalized_name AS normalized_name,
			ac.kind AS kind,
			aa.chapter_id AS chapter_id,
			c.order_index AS chapter_order,
			aa.class_record_id AS class_record_id,
			cr.class_name AS class_name,
			aa.level_at_acquisition AS level_at_acquisition`).
		Joins("JOIN ability_catalog ac ON ac.id = aa.ability_id").
		Joins("JOIN chapters c ON c.id = aa.chapter_id").
		Joins("LEFT JOIN class_records cr ON cr.id = aa.class_record_id").
		Where("aa.character_id = ?", q.CharacterID).
		Where("c.order_index <= ?", q.Cutoff)
	if q.Kind != "" {
		tx = tx.Where("ac.kind = ?", string(q.Kind))
	}
	if len(q.OccludedBy) > 0 {
		tx = tx.Where(`NOT EXISTS (
			SELECT 1 FROM removal_facts rf
			JOIN chapters rc ON rc.id = rf.chapter_id
			WHERE rf.character_id = aa.character_id
			  AND rf.subject_normalized = ac.normalized_name
			  AND rf.kind IN ?
			  AND rc.order_index >= c.order_index
			  AND rc.order_index <= ?
		)`, kindStrings(q.OccludedBy), q.Cutoff)
	}
	var out []AbilityEntry
	err := tx.
		Order("c.order_index ASC").
		Order("ac.normalized_name ASC").
		Order("ac.kind ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
