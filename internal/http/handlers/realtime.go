package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/jobs/events
func (h *RealtimeHandler) JobEvents(c *gin.Context) {
	h.log.Debug("job event stream open", "clients", h.hub.Clients()+1)
	h.hub.ServeSSE(c.Writer, c.Request)
	h.log.Debug("job event stream closed")
}
