package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

type CharacterRepo interface {
	Create(dbc dbctx.Context, c *types.Character) error
	AddAlias(dbc dbctx.Context, alias *types.CharacterAlias) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Character, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Character, error)
	List(dbc dbctx.Context) ([]*types.Character, error)
	FindByName(dbc dbctx.Context, normalized string) (*types.Character, error)
}

type characterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCharacterRepo(db *gorm.DB, baseLog *logger.Logger) CharacterRepo {
	return &characterRepo{db: db, log: baseLog.With("repo", "CharacterRepo")}
}

func (r *characterRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

// Create inserts the character with its aliases.
func (r *characterRepo) Create(dbc dbctx.Context, c *types.Character) error {
	if c == nil {
		return nil
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	for _, a := range c.Aliases {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.CharacterID = c.ID
		a.CreatedAt = now
	}
	return r.dbx(dbc).Create(c).Error
}

func (r *characterRepo) AddAlias(dbc dbctx.Context, alias *types.CharacterAlias) error {
	if alias == nil {
		return nil
	}
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	return r.dbx(dbc).Create(alias).Error
}

func (r *characterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Character, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Character
	if err := r.dbx(dbc).Preload("Aliases").Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *characterRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Character, error) {
	var out []*types.Character
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).Preload("Aliases").Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *characterRepo) List(dbc dbctx.Context) ([]*types.Character, error) {
	var out []*types.Character
	if err := r.dbx(dbc).Preload("Aliases").Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FindByName matches the canonical name first, then aliases.
func (r *characterRepo) FindByName(dbc dbctx.Context, normalized string) (*types.Character, error) {
	if normalized == "" {
		return nil, nil
	}
	var c types.Character
	err := r.dbx(dbc).
		Preload("Aliases").
		Where("normalized_name = ?", normalized).
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID != uuid.Nil {
		return &c, nil
	}
	var alias types.CharacterAlias
	if err := r.dbx(dbc).Where("normalized_alias = ?", normalized).Limit(1).Find(&alias).Error; err != nil {
		return nil, err
	}
	if alias.ID == uuid.Nil {
		return nil, nil
	}
	return r.GetByID(dbc, alias.CharacterID)
}
