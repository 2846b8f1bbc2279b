package app

import (
	"gorm.io/gorm"

	httpx "github.com/yungbote/progressledger/internal/http"
	httpH "github.com/yungbote/progressledger/internal/http/handlers"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/realtime"
)

func wireServer(db *gorm.DB, log *logger.Logger, cfg Config, svc Services, hub *realtime.Hub) *httpx.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return httpx.NewServer(cfg.HTTPAddr, httpx.RouterConfig{
		Log:         log.With("component", "HTTP"),
		ServiceName: serviceName,
		CORSOrigins: cfg.CORSOrigins,

		NotificationHandler: httpH.NewNotificationHandler(log, svc.Attribution, svc.Writer),
		CharacterHandler:    httpH.NewCharacterHandler(log, svc.Characters, svc.Query),
		ChapterHandler:      httpH.NewChapterHandler(log, svc.Chapters),
		JobHandler:          httpH.NewJobHandler(log, svc.Jobs),
		RealtimeHandler:     httpH.NewRealtimeHandler(log, hub),
		HealthHandler:       httpH.NewHealthHandler(db),
	})
}
