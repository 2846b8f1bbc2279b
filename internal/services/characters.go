package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/normalization"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

type CharacterInput struct {
	Name    string   `json:"name" yaml:"name"`
	Species string   `json:"species,omitempty" yaml:"species"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`
}

type CharacterService interface {
	Create(dbc dbctx.Context, in CharacterInput) (*types.Character, error)
	AddAlias(dbc dbctx.Context, characterID uuid.UUID, alias string) (*types.Character, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Character, error)
	List(dbc dbctx.Context) ([]*types.Character, error)
	// Resolve finds a character by name or alias, case-insensitively. It
	// returns nil when nothing matches.
	Resolve(dbc dbctx.Context, name string) (*types.Character, error)
}

type characterService struct {
	log        *logger.Logger
	characters repos.CharacterRepo
}

func NewCharacterService(baseLog *logger.Logger, characters repos.CharacterRepo) CharacterService {
	return &characterService{log: baseLog.With("service", "CharacterService"), characters: characters}
}

func (s *characterService) Create(dbc dbctx.Context, in CharacterInput) (*types.Character, error) {
	name := normalization.CleanDisplay(in.Name)
	norm := normalization.NormalizeName(name)
	if norm == "" {
		return nil, apierr.Validation("name required")
	}
	c := &types.Character{
		Name:           name,
		NormalizedName: norm,
		Species:        strings.TrimSpace(in.Species),
	}
	seen := map[string]bool{norm: true}
	for _, a := range in.Aliases {
		display := normalization.CleanDisplay(a)
		key := normalization.NormalizeName(display)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		c.Aliases = append(c.Aliases, &types.CharacterAlias{Alias: display, NormalizedAlias: key})
	}
	if err := s.characters.Create(dbc, c); err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, apierr.Conflict("character name or alias already registered")
		}
		return nil, apierr.Persistence("create character", err)
	}
	s.log.Info("character created", "character_id", c.ID, "aliases", len(c.Aliases))
	return s.Get(dbc, c.ID)
}

func (s *characterService) AddAlias(dbc dbctx.Context, characterID uuid.UUID, alias string) (*types.Character, error) {
	display := normalization.CleanDisplay(alias)
	key := normalization.NormalizeName(display)
	if key == "" {
		return nil, apierr.Validation("alias required")
	}
	if _, err := s.Get(dbc, characterID); err != nil {
		return nil, err
	}
	err := s.characters.AddAlias(dbc, &types.CharacterAlias{
		CharacterID:     characterID,
		Alias:           display,
		NormalizedAlias: key,
	})
	if err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, apierr.Conflict("alias %q already registered", display)
		}
		return nil, apierr.Persistence("add alias", err)
	}
	return s.Get(dbc, characterID)
}

func (s *characterService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Character, error) {
	c, err := s.characters.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.Persistence("load character", err)
	}
	if c == nil {
		return nil, apierr.NotFound("character %s not found", id)
	}
	return c, nil
}

func (s *characterService) List(dbc dbctx.Context) ([]*types.Character, error) {
	out, err := s.characters.List(dbc)
	if err != nil {
		return nil, apierr.Persistence("list characters", err)
	}
	return out, nil
}

func (s *characterService) Resolve(dbc dbctx.Context, name string) (*types.Character, error) {
	c, err := s.characters.FindByName(dbc, normalization.NormalizeName(name))
	if err != nil {
		return nil, apierr.Persistence("resolve character", err)
	}
	return c, nil
}
