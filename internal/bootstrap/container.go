package bootstrap

import (
	"context"
	"sync"

	chclient "optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/kafka"
	"optionsflow/internal/adapters/nasdaq"
	pgclient "optionsflow/internal/adapters/postgres"
	redisclient "optionsflow/internal/adapters/redis"
	"optionsflow/internal/api"
	"optionsflow/internal/api/handlers"
	"optionsflow/internal/api/health"
	"optionsflow/internal/domain/optionsflow"
	"optionsflow/internal/events"
	"optionsflow/internal/workers"
	derivworkers "optionsflow/internal/workers/derivatives"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// Container holds all application dependencies
// Components are initialized in phases, see MustInit
type Container struct {
	// Core
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure
	PG    *pgclient.Client
	CH    *chclient.Client // nil unless ClickHouse is enabled
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Application *Application
	Background  *Background

	// Lifecycle
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the persistent stores
type Repositories struct {
	History   optionsflow.HistoryRepository
	Registry  optionsflow.TickerRegistry
	Snapshots optionsflow.SnapshotRepository // nil unless ClickHouse is enabled
}

// Adapters groups external integrations
type Adapters struct {
	ChainSource       *nasdaq.Client
	KafkaProducer     *kafka.Producer // nil unless Kafka is enabled
	AnalysisPublisher *events.AnalysisPublisher
}

// Application groups the HTTP surface
type Application struct {
	HealthHandler *health.Handler
	APIHandlers   *handlers.Handlers
	HTTPServer    *api.Server
}

// Background groups the scheduled batch analysis
type Background struct {
	AnalysisRunner  *derivworkers.AnalysisRunner
	Analyzer        *derivworkers.OptionsFlowAnalyzer
	WorkerScheduler *workers.Scheduler
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitBackground()
	c.MustInitApplication()
}

// Start starts the HTTP server and the worker scheduler
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.Log.Infow("✓ All systems operational",
		"port", c.Config.HTTP.Port,
		"workers", len(c.Background.WorkerScheduler.GetWorkers()),
	)
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() error {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	return c.Lifecycle.Shutdown(ShutdownTargets{
		WG:           c.WG,
		HTTPServer:   c.Application.HTTPServer,
		Scheduler:    c.Background.WorkerScheduler,
		Producer:     c.Adapters.KafkaProducer,
		PG:           c.PG,
		CH:           c.CH,
		Redis:        c.Redis,
		ErrorTracker: c.ErrorTracker,
	}, c.Log)
}

// Abort stops in-flight analysis without persisting its results
// Used when a second termination signal arrives during graceful shutdown
func (c *Container) Abort() {
	if c.Background.WorkerScheduler == nil {
		return
	}
	if err := c.Background.WorkerScheduler.Abort(); err != nil {
		c.Log.Warnw("Abort did not complete cleanly", "error", err)
	}
}
