package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
)

func reqCtx(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apierr.Validation("invalid %s", name)
	}
	return id, nil
}

func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apierr.Validation("invalid %s", name)
	}
	return &id, nil
}

func optionalIntQuery(c *gin.Context, name string) (*int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apierr.Validation("%s must be an integer", name)
	}
	return &n, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	n, err := optionalIntQuery(c, name)
	if err != nil || n == nil {
		return def, err
	}
	if *n < 0 {
		return def, apierr.Validation("%s must not be negative", name)
	}
	return *n, nil
}

// cutoffQuery reads as_of. Omitting it is only allowed with spoilers=true,
// which asks for the unfiltered ledger.
func cutoffQuery(c *gin.Context) (*int, error) {
	cutoff, err := optionalIntQuery(c, "as_of")
	if err != nil {
		return nil, err
	}
	spoilers, _ := strconv.ParseBool(strings.TrimSpace(c.DefaultQuery("spoilers", "false")))
	if cutoff == nil && !spoilers {
		return nil, apierr.Validation("as_of is required unless spoilers=true")
	}
	if spoilers {
		return nil, nil
	}
	return cutoff, nil
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apierr.Validation("invalid request body: %v", err)
	}
	return nil
}

func intParam(c *gin.Context, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return 0, apierr.Validation("%s must be an integer", name)
	}
	return n, nil
}
