package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/db"
	httpx "github.com/OperativeX/processmind-sub001/internal/http"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/realtime"
	"github.com/OperativeX/processmind-sub001/internal/realtime/bus"
	"github.com/OperativeX/processmind-sub001/internal/services"
	"github.com/OperativeX/processmind-sub001/internal/temporalx"
	"github.com/OperativeX/processmind-sub001/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Handlers Handlers
	Server   *httpx.Server
	SSEHub   *realtime.SSEHub
	Bus      bus.Bus

	temporal temporalsdkclient.Client
	runner   *temporalworker.Runner
	cancel   context.CancelFunc
}

func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	ssehub := realtime.NewSSEHub(log)

	// With multiple API replicas the workers publish through Redis so every
	// replica's hub sees job events. Single-process deploys skip the bus.
	var eventBus bus.Bus
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: ssehub}
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		eventBus, err = bus.NewRedisBus(log)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init redis event bus: %w", err)
		}
		emitter = &services.RedisEmitter{Bus: eventBus}
	}

	tc, err := temporalx.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init temporal client: %w", err)
	}
	var dispatch services.Dispatcher
	if tc != nil {
		dispatch = temporalx.NewQueueDispatcher(log, tc)
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, reposet, emitter, dispatch)
	if err != nil {
		log.Sync()
		return nil, err
	}

	var runner *temporalworker.Runner
	if tc != nil {
		runner, err = temporalworker.NewRunner(log, tc, serviceset.JobWorker)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init temporal runner: %w", err)
		}
	}

	handlerset := wireHandlers(log, serviceset, ssehub)
	server := wireServer(log, handlerset)

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Handlers: handlerset,
		Server:   server,
		SSEHub:   ssehub,
		Bus:      eventBus,
		temporal: tc,
		runner:   runner,
	}, nil
}

// Start launches the background machinery: the Redis->hub forwarder and
// either the Temporal runner or the polling worker pools. The HTTP listener
// is started separately via Run.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Bus != nil {
		if err := a.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start event forwarder: %w", err)
		}
	}

	if a.runner != nil {
		if err := a.runner.Start(ctx); err != nil {
			return fmt.Errorf("start temporal runner: %w", err)
		}
		a.Log.Info("Job dispatch via Temporal queue_drain workflows")
	} else {
		a.Services.JobWorker.Start(ctx, jobs.QueueNames())
		a.Log.Info("Job dispatch via polling worker pools")
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run(a.Cfg.HTTPAddr)
}

func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.Server.Shutdown(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.temporal != nil {
		a.temporal.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
