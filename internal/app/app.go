package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/progressledger/internal/data/db"
	"github.com/yungbote/progressledger/internal/data/repos"
	httpx "github.com/yungbote/progressledger/internal/http"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/realtime"
	"github.com/yungbote/progressledger/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    *repos.Set
	Hub      *realtime.Hub
	Clients  Clients
	Services Services
	Server   *httpx.Server

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

// Mode selects which clients New dials.
type Mode int

const (
	ModeServe Mode = iota
	ModeMigrate
	ModeTemporalWorker
)

func New(ctx context.Context, cfg Config, mode Mode) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}

	dbs, err := db.NewService(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	a.dbService = dbs
	a.DB = dbs.DB()
	if mode == ModeMigrate {
		return a, nil
	}
	// sqlite files are migrated on open
	if dbs.Driver() == db.DriverSQLite {
		if err := dbs.AutoMigrateAll(); err != nil {
			a.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	a.Repos = repos.NewSet(a.DB, log)
	a.Hub = realtime.NewHub(log)

	needTemporal := mode == ModeTemporalWorker || cfg.Jobs.Executor == ExecutorTemporal
	a.Clients, err = wireClients(ctx, log, cfg, needTemporal)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services, err = wireServices(a.DB, log, cfg, a.Repos, a.Hub, a.Clients)
	if err != nil {
		a.Close()
		return nil, err
	}
	if mode == ModeServe {
		a.Server = wireServer(a.DB, log, cfg, a.Services, a.Hub)
	}
	return a, nil
}

func (a *App) Migrate() error {
	return a.dbService.AutoMigrateAll()
}

// Serve runs the HTTP API, the local job worker and the event forwarder until
// ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	if a.Server == nil {
		return fmt.Errorf("app not initialized for serving")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Services.Worker.Start(gctx)

	if a.Clients.Bus != nil {
		g.Go(func() error {
			if err := a.Clients.Bus.StartForwarder(gctx, a.Hub.Broadcast); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Warn("job event forwarder not running", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr, "executor", a.Cfg.Jobs.Executor)
		return a.Server.Run(gctx)
	})

	err := g.Wait()
	a.Services.Worker.Wait()
	return err
}

// RunTemporalWorker polls the job task queue until ctx is done.
func (a *App) RunTemporalWorker(ctx context.Context) error {
	if a.Clients.Temporal == nil {
		return fmt.Errorf("temporal worker requires TEMPORAL_ADDRESS")
	}
	a.Services.Worker.Start(ctx)
	runner, err := temporalworker.NewRunner(a.Log, a.Cfg.Temporal, a.Clients.Temporal, a.Services.Worker, a.Repos.JobRuns)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.Services.Worker.Wait()
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.close()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
