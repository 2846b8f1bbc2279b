package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/http/response"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/services"
)

type CharacterHandler struct {
	log        *logger.Logger
	characters services.CharacterService
	query      services.QueryService
}

func NewCharacterHandler(log *logger.Logger, characters services.CharacterService, query services.QueryService) *CharacterHandler {
	return &CharacterHandler{
		log:        log.With("handler", "CharacterHandler"),
		characters: characters,
		query:      query,
	}
}

type createCharacterRequest struct {
	Name    string   `json:"name" binding:"required"`
	Species string   `json:"species"`
	Aliases []string `json:"aliases"`
}

type aliasRequest struct {
	Alias string `json:"alias" binding:"required"`
}

// POST /api/characters
func (h *CharacterHandler) Create(c *gin.Context) {
	var req createCharacterRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	ch, err := h.characters.Create(reqCtx(c), services.CharacterInput{
		Name:    req.Name,
		Species: req.Species,
		Aliases: req.Aliases,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"character": ch})
}

// GET /api/characters
func (h *CharacterHandler) List(c *gin.Context) {
	if name := strings.TrimSpace(c.Query("name")); name != "" {
		ch, err := h.characters.Resolve(reqCtx(c), name)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		out := []*types.Character{}
		if ch != nil {
			out = append(out, ch)
		}
		response.RespondOK(c, gin.H{"characters": out})
		return
	}
	rows, err := h.characters.List(reqCtx(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"characters": rows})
}

// GET /api/characters/:id
func (h *CharacterHandler) Get(c *gin.Context) {
	ch, ok := h.character(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"character": ch})
}

// POST /api/characters/:id/aliases
func (h *CharacterHandler) AddAlias(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var req aliasRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	ch, err := h.characters.AddAlias(reqCtx(c), id, req.Alias)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"character": ch})
}

// GET /api/characters/:id/classes?as_of=N
// Unknown characters answer with empty lists.
func (h *CharacterHandler) Classes(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	cutoff, err := cutoffQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.query.ClassesAsOf(reqCtx(c), id, cutoff)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"character_id": id, "as_of": cutoff, "classes": nonNil(out)})
}

// GET /api/characters/:id/abilities?as_of=N&kind=skill
func (h *CharacterHandler) Abilities(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	cutoff, err := cutoffQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	kind := types.AbilityKind(strings.ToLower(strings.TrimSpace(c.Query("kind"))))
	out, err := h.query.AbilitiesAsOf(reqCtx(c), id, cutoff, kind)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"character_id": id, "as_of": cutoff, "abilities": nonNil(out)})
}

// GET /api/characters/:id/timeline?as_of=N
func (h *CharacterHandler) Timeline(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	cutoff, err := cutoffQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.query.TimelineAsOf(reqCtx(c), id, cutoff)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"character_id": id, "as_of": cutoff, "timeline": nonNil(out)})
}

// character resolves :id, writing the error response itself.
func (h *CharacterHandler) character(c *gin.Context) (*types.Character, bool) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return nil, false
	}
	ch, err := h.characters.Get(reqCtx(c), id)
	if err != nil {
		response.RespondError(c, err)
		return nil, false
	}
	return ch, true
}

// nonNil keeps empty results encoding as [] instead of null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
