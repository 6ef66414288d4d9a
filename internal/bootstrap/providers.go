package bootstrap

import (
	"context"
	"time"

	chclient "optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/config"
	errnoop "optionsflow/internal/adapters/errors/noop"
	"optionsflow/internal/adapters/errors/sentry"
	"optionsflow/internal/adapters/kafka"
	"optionsflow/internal/adapters/nasdaq"
	pgclient "optionsflow/internal/adapters/postgres"
	redisclient "optionsflow/internal/adapters/redis"
	"optionsflow/internal/api"
	"optionsflow/internal/api/handlers"
	"optionsflow/internal/api/health"
	"optionsflow/internal/events"
	"optionsflow/internal/metrics"
	chrepo "optionsflow/internal/repository/clickhouse"
	pgrepo "optionsflow/internal/repository/postgres"
	redisrepo "optionsflow/internal/repository/redis"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const schemaTimeout = 30 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects data stores and ensures their schema
func (c *Container) MustInitInfrastructure() {
	var err error

	ctx, cancel := context.WithTimeout(c.Context, schemaTimeout)
	defer cancel()

	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	if err := c.PG.EnsureSchema(ctx); err != nil {
		c.Log.Fatalf("failed to ensure postgres schema: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		if err := c.CH.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to ensure clickhouse schema: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	} else {
		c.Log.Info("ClickHouse disabled, snapshot history off")
	}

	c.Log.Info("Connecting to Redis...")
	c.Redis, err = redisclient.NewClient(c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	c.Log.Info("✓ Redis connected")
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories initializes the history, registry and snapshot stores
func (c *Container) MustInitRepositories() {
	c.Repos.History = pgrepo.NewAnalysisHistoryRepository(c.PG.DB())
	c.Repos.Registry = redisrepo.NewTickerRegistry(c.Redis.Client())
	if c.CH != nil {
		c.Repos.Snapshots = chrepo.NewOptionsSnapshotRepository(c.CH.Conn())
	}

	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes the chain source and the event producer
func (c *Container) MustInitAdapters() {
	c.Adapters.ChainSource = nasdaq.NewClient(c.Config.ChainSource)
	c.Log.Infow("✓ Chain source initialized",
		"base_url", c.Config.ChainSource.BaseURL,
		"requests_per_minute", c.Config.ChainSource.RequestsPerMin,
	)

	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
		c.Adapters.AnalysisPublisher = events.NewAnalysisPublisher(c.Adapters.KafkaProducer)
	} else {
		c.Log.Info("Kafka disabled, analysis events off")
	}
}

// ========================================
// Phase 5: Application Layer
// ========================================

// MustInitApplication builds health checks, query handlers, metrics and the HTTP server
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = provideHealthHandler(c)
	c.Application.APIHandlers = handlers.New(
		c.Repos.Registry,
		c.Repos.History,
		c.Repos.Snapshots,
		c.Adapters.ChainSource,
		c.Log,
	)
	c.Application.HTTPServer = provideHTTPServer(c.Config, c.Application.HealthHandler, c.Application.APIHandlers, c.Log)

	metrics.Init()
	metrics.RegisterCustomCollector(metrics.NewCustomCollector(c.Log, c.PG.DB(), c.Repos.Registry, c.Adapters.ChainSource))
	c.Log.Info("✓ Metrics initialized")

	c.Log.Info("✓ Application layer initialized")
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...")
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("Kafka brokers not configured, using default localhost:9092")
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Async:   cfg.Kafka.Async,
	})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

func provideHealthHandler(c *Container) *health.Handler {
	h := health.New(c.Log, c.Config.App.Name, c.Config.App.Version).
		AddCheck("postgres", c.PG).
		AddCheck("redis", c.Redis).
		WithChainSource(c.Adapters.ChainSource).
		WithWorkers(c.Background.WorkerScheduler)

	if c.CH != nil {
		h.AddCheck("clickhouse", c.CH)
	}
	return h
}

func provideHTTPServer(cfg *config.Config, healthHandler *health.Handler, apiHandlers *handlers.Handlers, log *logger.Logger) *api.Server {
	return api.NewServer(api.ServerConfig{
		Port:         cfg.HTTP.Port,
		ServiceName:  cfg.App.Name,
		Version:      cfg.App.Version,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, healthHandler, apiHandlers, log)
}
