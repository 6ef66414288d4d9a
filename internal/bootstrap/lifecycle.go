package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/kafka"
	pgclient "optionsflow/internal/adapters/postgres"
	redisclient "optionsflow/internal/adapters/redis"
	"optionsflow/internal/api"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// ShutdownTargets lists everything the lifecycle tears down
// Nil entries are skipped
type ShutdownTargets struct {
	WG           *sync.WaitGroup
	HTTPServer   *api.Server
	Scheduler    *workers.Scheduler
	Producer     *kafka.Producer
	PG           *pgclient.Client
	CH           *chclient.Client
	Redis        *redisclient.Client
	ErrorTracker errors.Tracker
}

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
	httpTimeout     time.Duration
	goroutineWait   time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 150 * time.Second,
		httpTimeout:     5 * time.Second,
		goroutineWait:   5 * time.Second,
	}
}

// Shutdown performs coordinated cleanup in order:
// 1. HTTP server stops accepting queries
// 2. Workers finish; an in-flight batch still flushes its results
// 3. Kafka producer closes after the last batch event
// 4. Logs and errors flushed
// 5. Database connections last (the batch flush needs them)
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	var errs errors.MultiError

	log.Info("[1/6] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, l.httpTimeout)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
			errs.Add(errors.Wrap(err, "http"))
		} else {
			log.Info("✓ HTTP server stopped")
		}
		httpCancel()
	}

	log.Info("[2/6] Stopping background workers...")
	if t.Scheduler != nil {
		if err := t.Scheduler.Stop(); err != nil {
			log.Errorw("Workers did not stop in time, aborting", "error", err)
			errs.Add(errors.Wrap(err, "workers"))
			if abortErr := t.Scheduler.Abort(); abortErr != nil && !errors.Is(abortErr, err) {
				errs.Add(errors.Wrap(abortErr, "workers abort"))
			}
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	log.Info("[3/6] Waiting for goroutines...")
	if t.WG != nil {
		l.waitForGoroutines(t.WG, l.goroutineWait, log)
	}

	log.Info("[4/6] Closing Kafka producer...")
	if t.Producer != nil {
		if err := t.Producer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
			errs.Add(errors.Wrap(err, "kafka"))
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[5/6] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	log.Info("[6/6] Closing database connections...")
	if err := l.closeDatabases(t.PG, t.CH, t.Redis); err != nil {
		log.Errorw("Database close errors", "error", err)
		errs.Add(err)
	} else {
		log.Info("✓ Database connections closed")
	}

	if errs.HasErrors() {
		return errs.ToError()
	}
	log.Info("✅ Graceful shutdown complete")
	return nil
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

func (l *Lifecycle) closeDatabases(pg *pgclient.Client, ch *chclient.Client, rdb *redisclient.Client) error {
	var errs errors.MultiError

	if pg != nil {
		errs.Add(errors.Wrap(pg.Close(), "postgres"))
	}
	if ch != nil {
		errs.Add(errors.Wrap(ch.Close(), "clickhouse"))
	}
	if rdb != nil {
		errs.Add(errors.Wrap(rdb.Close(), "redis"))
	}

	return errs.ToError()
}
