package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/progressledger/internal/http/response"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/services"
)

type ChapterHandler struct {
	log      *logger.Logger
	chapters services.ChapterService
}

func NewChapterHandler(log *logger.Logger, chapters services.ChapterService) *ChapterHandler {
	return &ChapterHandler{log: log.With("handler", "ChapterHandler"), chapters: chapters}
}

type chapterRequest struct {
	OrderIndex  int        `json:"order_index" binding:"gte=0"`
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Text        string     `json:"text"`
	PublishedAt *time.Time `json:"published_at"`
}

// POST /api/chapters
// With text present the chapter is scanned for notifications; without it the
// chapter row is only upserted.
func (h *ChapterHandler) Upsert(c *gin.Context) {
	var req chapterRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	in := services.ChapterInput{
		OrderIndex:  req.OrderIndex,
		ExternalID:  req.ExternalID,
		Title:       req.Title,
		URL:         req.URL,
		Text:        req.Text,
		PublishedAt: req.PublishedAt,
	}
	if in.Text == "" {
		ch, err := h.chapters.Upsert(reqCtx(c), in)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"chapter": ch})
		return
	}
	res, err := h.chapters.Ingest(reqCtx(c), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/chapters
func (h *ChapterHandler) List(c *gin.Context) {
	limit, err := intQuery(c, "limit", 100)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	rows, err := h.chapters.List(reqCtx(c), limit, offset)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	latest, ok, err := h.chapters.LatestOrder(reqCtx(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out := gin.H{"chapters": nonNil(rows)}
	if ok {
		out["latest_order"] = latest
	}
	response.RespondOK(c, out)
}

// GET /api/chapters/:order
func (h *ChapterHandler) Get(c *gin.Context) {
	order, err := intParam(c, "order")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	ch, err := h.chapters.Get(reqCtx(c), order)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chapter": ch})
}
