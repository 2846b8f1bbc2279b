package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/jobs/pipeline/classify"
	"github.com/yungbote/progressledger/internal/jobs/pipeline/ingest"
	"github.com/yungbote/progressledger/internal/jobs/pipeline/process"
	jobrt "github.com/yungbote/progressledger/internal/jobs/runtime"
	"github.com/yungbote/progressledger/internal/jobs/worker"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/realtime"
	"github.com/yungbote/progressledger/internal/services"
	"github.com/yungbote/progressledger/internal/temporalx"
)

type Services struct {
	Characters  services.CharacterService
	Chapters    services.ChapterService
	Attribution services.AttributionService
	Writer      services.LedgerWriter
	Query       services.QueryService
	Notifier    services.JobNotifier
	Jobs        services.JobService

	Registry *jobrt.Registry
	Worker   *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, set *repos.Set, hub *realtime.Hub, clients Clients) (Services, error) {
	var out Services
	out.Characters = services.NewCharacterService(log, set.Characters)
	out.Chapters = services.NewChapterService(db, log, set.Chapters, set.Notifications)
	out.Attribution = services.NewAttributionService(db, log, set.Notifications, set.Characters, cfg.AutoAcceptThreshold)
	out.Writer = services.NewLedgerWriter(db, log, set)
	out.Query = services.NewQueryService(log, set)
	out.Notifier = services.NewJobNotifier(log, hub, clients.Bus)

	out.Registry = jobrt.NewRegistry()
	handlers := []jobrt.Handler{
		ingest.New(log, out.Chapters, out.Characters),
		classify.New(log, set.Notifications, set.Characters, out.Attribution, clients.Classifier),
		process.New(log, set.Notifications, out.Writer, cfg.Jobs.ProcessBatchSize),
	}
	for _, h := range handlers {
		if err := out.Registry.Register(h); err != nil {
			return out, fmt.Errorf("register job handler: %w", err)
		}
	}

	out.Worker = worker.NewWorker(db, log, set.JobRuns, out.Registry, out.Notifier, worker.Config{
		OwnerID:   cfg.InstanceID,
		LeaseTTL:  cfg.Jobs.LeaseTTL(),
		Heartbeat: cfg.Jobs.Heartbeat(),
	})

	var dispatcher services.JobDispatcher = out.Worker
	if cfg.Jobs.Executor == ExecutorTemporal {
		if clients.Temporal == nil {
			return out, fmt.Errorf("JOB_EXECUTOR=temporal requires TEMPORAL_ADDRESS")
		}
		dispatcher = temporalx.NewDispatcher(log, clients.Temporal, cfg.Temporal.TaskQueue)
	}
	out.Jobs = services.NewJobService(log, set.JobRuns, out.Notifier, dispatcher, services.JobServiceConfig{
		InstanceID: cfg.InstanceID,
		LeaseTTL:   cfg.Jobs.LeaseTTL(),
	})
	return out, nil
}
