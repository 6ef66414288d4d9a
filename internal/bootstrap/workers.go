package bootstrap

import (
	"optionsflow/internal/adapters/config"
	"optionsflow/internal/workers"
	derivworkers "optionsflow/internal/workers/derivatives"
	"optionsflow/pkg/logger"
)

// ========================================
// Phase 6: Background Processing
// ========================================

// MustInitBackground builds the analysis runner and registers its worker
func (c *Container) MustInitBackground() {
	opts := []derivworkers.RunnerOption{derivworkers.WithLocker(c.Redis)}
	if c.Repos.Snapshots != nil {
		opts = append(opts, derivworkers.WithSnapshotRepository(c.Repos.Snapshots))
	}
	if c.Adapters.AnalysisPublisher != nil {
		opts = append(opts, derivworkers.WithPublisher(c.Adapters.AnalysisPublisher))
	}

	c.Background.AnalysisRunner = derivworkers.NewAnalysisRunner(
		c.Adapters.ChainSource,
		c.Repos.Registry,
		c.Repos.History,
		runnerConfig(c.Config.Workers),
		opts...,
	)

	c.Background.Analyzer, c.Background.WorkerScheduler = provideWorkers(c.Config.Workers, c.Background.AnalysisRunner, c.Log)
}

func runnerConfig(cfg config.WorkerConfig) derivworkers.RunnerConfig {
	return derivworkers.RunnerConfig{
		MaxConcurrency: cfg.MaxConcurrency,
		TickerTimeout:  cfg.TickerTimeout,
		StoreTimeout:   cfg.StoreTimeout,
		// A crashed instance must not hold the batch lock past the next tick
		LockTTL: cfg.AnalysisInterval,
	}
}

// provideWorkers registers the background workers with a scheduler
func provideWorkers(cfg config.WorkerConfig, runner *derivworkers.AnalysisRunner, log *logger.Logger) (*derivworkers.OptionsFlowAnalyzer, *workers.Scheduler) {
	scheduler := workers.NewScheduler()

	analyzer := derivworkers.NewOptionsFlowAnalyzer(runner, cfg.AnalysisInterval, cfg.Enabled, cfg.RunOnStart)
	scheduler.RegisterWorker(analyzer)

	log.Infow("✓ Workers registered",
		"analyzer_enabled", cfg.Enabled,
		"interval", cfg.AnalysisInterval,
		"run_on_start", cfg.RunOnStart,
		"max_concurrency", cfg.MaxConcurrency,
	)
	return analyzer, scheduler
}
