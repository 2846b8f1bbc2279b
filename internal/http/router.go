package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/progressledger/internal/http/handlers"
	httpMW "github.com/yungbote/progressledger/internal/http/middleware"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	NotificationHandler *httpH.NotificationHandler
	CharacterHandler    *httpH.CharacterHandler
	ChapterHandler      *httpH.ChapterHandler
	JobHandler          *httpH.JobHandler
	RealtimeHandler     *httpH.RealtimeHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics())
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	api := r.Group("/api")
	{
		// Notifications
		if h := cfg.NotificationHandler; h != nil {
			api.GET("/notifications", h.List)
			api.GET("/notifications/review-queue", h.ReviewQueue)
			api.GET("/notifications/:id", h.Get)
			api.POST("/notifications/assign", h.Assign)
			api.POST("/notifications/archive", h.Archive)
			api.POST("/notifications/unarchive", h.Unarchive)
			api.POST("/notifications/process", h.Process)
			api.POST("/notifications/:id/unassign", h.Unassign)
			api.POST("/notifications/:id/classify", h.Classify)
			api.POST("/notifications/:id/attribute", h.Attribute)
		}

		// Characters and as-of queries
		if h := cfg.CharacterHandler; h != nil {
			api.POST("/characters", h.Create)
			api.GET("/characters", h.List)
			api.GET("/characters/:id", h.Get)
			api.POST("/characters/:id/aliases", h.AddAlias)
			api.GET("/characters/:id/classes", h.Classes)
			api.GET("/characters/:id/abilities", h.Abilities)
			api.GET("/characters/:id/timeline", h.Timeline)
		}

		// Chapters
		if h := cfg.ChapterHandler; h != nil {
			api.POST("/chapters", h.Upsert)
			api.GET("/chapters", h.List)
			api.GET("/chapters/:order", h.Get)
		}

		// Jobs
		if h := cfg.RealtimeHandler; h != nil {
			api.GET("/jobs/events", h.JobEvents)
		}
		if h := cfg.JobHandler; h != nil {
			api.POST("/jobs", h.StartJob)
			api.GET("/jobs", h.ListJobs)
			api.GET("/jobs/:id", h.GetJob)
			api.POST("/jobs/:id/cancel", h.CancelJob)
		}
	}

	return r
}
