package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/http/response"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/services"
)

type NotificationHandler struct {
	log         *logger.Logger
	attribution services.AttributionService
	writer      services.LedgerWriter
}

func NewNotificationHandler(log *logger.Logger, attribution services.AttributionService, writer services.LedgerWriter) *NotificationHandler {
	return &NotificationHandler{
		log:         log.With("handler", "NotificationHandler"),
		attribution: attribution,
		writer:      writer,
	}
}

type notificationIDsRequest struct {
	NotificationIDs []uuid.UUID `json:"notification_ids" binding:"required,min=1"`
}

type assignRequest struct {
	NotificationIDs []uuid.UUID `json:"notification_ids" binding:"required,min=1"`
	CharacterID     uuid.UUID   `json:"character_id" binding:"required"`
}

type classifyRequest struct {
	Type   string          `json:"type" binding:"required"`
	Fields json.RawMessage `json:"fields"`
}

type attributeRequest struct {
	CharacterID *uuid.UUID      `json:"character_id"`
	Type        string          `json:"type" binding:"required"`
	Fields      json.RawMessage `json:"fields"`
	Confidence  float64         `json:"confidence" binding:"gte=0,lte=1"`
	Rationale   string          `json:"rationale"`
}

// POST /api/notifications/assign
func (h *NotificationHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	rows, err := h.attribution.Assign(reqCtx(c), req.NotificationIDs, req.CharacterID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notifications": rows})
}

// POST /api/notifications/:id/unassign
func (h *NotificationHandler) Unassign(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	n, err := h.attribution.Unassign(reqCtx(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notification": n})
}

// POST /api/notifications/:id/classify
func (h *NotificationHandler) Classify(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var req classifyRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	n, err := h.attribution.Classify(reqCtx(c), id, req.Type, req.Fields)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notification": n})
}

// POST /api/notifications/:id/attribute
func (h *NotificationHandler) Attribute(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var req attributeRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	n, err := h.attribution.AutoAttribute(reqCtx(c), services.Attribution{
		NotificationID: id,
		CharacterID:    req.CharacterID,
		Type:           req.Type,
		Fields:         req.Fields,
		Confidence:     req.Confidence,
		Rationale:      req.Rationale,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notification": n, "state": n.State()})
}

// POST /api/notifications/archive
func (h *NotificationHandler) Archive(c *gin.Context) {
	var req notificationIDsRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	n, err := h.attribution.Archive(reqCtx(c), req.NotificationIDs)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"archived": n})
}

// POST /api/notifications/unarchive
func (h *NotificationHandler) Unarchive(c *gin.Context) {
	var req notificationIDsRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	n, err := h.attribution.Unarchive(reqCtx(c), req.NotificationIDs)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"unarchived": n})
}

// POST /api/notifications/process
func (h *NotificationHandler) Process(c *gin.Context) {
	var req notificationIDsRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	res, err := h.writer.Process(reqCtx(c), req.NotificationIDs)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	f, err := notificationFilter(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	rows, total, err := h.attribution.List(reqCtx(c), f)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notifications": rows, "total": total})
}

// GET /api/notifications/review-queue
func (h *NotificationHandler) ReviewQueue(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	rows, total, err := h.attribution.ReviewQueue(reqCtx(c), limit, offset)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notifications": rows, "total": total, "threshold": h.attribution.Threshold()})
}

// GET /api/notifications/:id
func (h *NotificationHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	n, err := h.attribution.Get(reqCtx(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notification": n, "state": n.State()})
}

func notificationFilter(c *gin.Context) (repos.NotificationFilter, error) {
	f := repos.NotificationFilter{Status: c.Query("status")}
	var err error
	if f.CharacterID, err = optionalUUIDQuery(c, "character_id"); err != nil {
		return f, err
	}
	if f.ChapterFrom, err = optionalIntQuery(c, "chapter_from"); err != nil {
		return f, err
	}
	if f.ChapterTo, err = optionalIntQuery(c, "chapter_to"); err != nil {
		return f, err
	}
	if f.Limit, err = intQuery(c, "limit", 100); err != nil {
		return f, err
	}
	if f.Offset, err = intQuery(c, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}
