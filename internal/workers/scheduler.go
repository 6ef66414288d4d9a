package workers

import (
	"context"
	"sync"
	"time"

	"optionsflow/internal/metrics"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// ErrHardShutdown is the cancellation cause used by Abort. Workers that
// observe it skip any best-effort cleanup such as flushing partial results.
var ErrHardShutdown = errors.New("hard shutdown")

type detachedKey struct{}

// Detached returns a context that survives the cancellation of ctx but is
// still canceled by Abort. Workers flush accumulated results under it.
func Detached(ctx context.Context) context.Context {
	if d, ok := ctx.Value(detachedKey{}).(context.Context); ok {
		return d
	}
	return context.WithoutCancel(ctx)
}

// Aborted reports whether ctx, or the detached context behind it, was canceled by Abort
func Aborted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrHardShutdown) ||
		errors.Is(context.Cause(Detached(ctx)), ErrHardShutdown)
}

const defaultShutdownTimeout = 2 * time.Minute

// healthRecorder is implemented by workers embedding BaseWorker
type healthRecorder interface {
	SetRunning(running bool)
	RecordRun(duration time.Duration)
	RecordError(err error, duration time.Duration)
}

// Scheduler manages and coordinates multiple workers
type Scheduler struct {
	workers         []Worker
	ctx             context.Context
	cancel          context.CancelCauseFunc
	abort           context.CancelCauseFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	log             *logger.Logger
	started         bool
	shutdownTimeout time.Duration
}

// NewScheduler creates a new worker scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		workers:         make([]Worker, 0),
		log:             logger.Get().With("component", "scheduler"),
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// SetShutdownTimeout bounds how long Stop and Abort wait for in-flight iterations
func (s *Scheduler) SetShutdownTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.shutdownTimeout = d
	}
}

// RegisterWorker adds a worker to the scheduler
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}

	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval())
}

// Start begins running all registered workers
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	detached, abort := context.WithCancelCause(context.WithoutCancel(ctx))
	runCtx, cancel := context.WithCancelCause(ctx)
	s.ctx = context.WithValue(runCtx, detachedKey{}, detached)
	s.cancel, s.abort = cancel, abort
	s.mu.Unlock()

	s.log.Infow("Starting worker scheduler", "workers", len(s.workers))

	for _, worker := range s.workers {
		if !worker.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", worker.Name())
			continue
		}

		s.wg.Add(1)
		go s.runWorker(worker)
	}

	s.log.Info("All workers started")
	return nil
}

// Stop gracefully shuts down all workers. In-flight iterations observe a
// plain cancellation and may still flush what they have accumulated.
func (s *Scheduler) Stop() error {
	return s.shutdown(nil)
}

// Abort cancels with ErrHardShutdown; in-flight iterations discard partial work
func (s *Scheduler) Abort() error {
	return s.shutdown(ErrHardShutdown)
}

func (s *Scheduler) shutdown(cause error) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}

	// Abort may follow a Stop that is still waiting; the detached context
	// is what reaches flushes already running past the first cancellation.
	if cause != nil {
		s.abort(cause)
	}
	s.cancel(cause)
	timeout := s.shutdownTimeout

	// Release lock before waiting so workers can read state
	s.mu.Unlock()

	s.log.Infow("Stopping worker scheduler...", "hard", cause != nil)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		s.log.Info("All workers stopped")
	case <-time.After(timeout):
		s.log.Warnw("Worker shutdown timed out", "timeout", timeout)
		shutdownErr = errors.Wrapf(errors.ErrTimeout, "shutdown timeout after %s", timeout)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return shutdownErr
}

// runWorker executes a single worker in a loop
func (s *Scheduler) runWorker(worker Worker) {
	defer s.wg.Done()

	s.log.Infow("Worker started", "worker", worker.Name())

	ticker := time.NewTicker(worker.Interval())
	defer ticker.Stop()

	runNow := true
	if r, ok := worker.(RunOnStarter); ok {
		runNow = r.RunOnStart()
	}
	if runNow {
		s.executeWorker(worker)
	}

	for {
		select {
		case <-s.ctx.Done():
			s.log.Infow("Worker stopping due to context cancellation",
				"worker", worker.Name(),
				"cause", context.Cause(s.ctx),
			)
			return

		case <-ticker.C:
			s.executeWorker(worker)
		}
	}
}

// executeWorker runs a single iteration of the worker with error handling
func (s *Scheduler) executeWorker(worker Worker) {
	if s.ctx.Err() != nil {
		return
	}

	start := time.Now()
	recorder, _ := worker.(healthRecorder)
	if recorder != nil {
		recorder.SetRunning(true)
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("worker %s panicked: %v", worker.Name(), r)
			s.log.Errorw("Worker panicked", "worker", worker.Name(), "panic", r)
		}

		duration := time.Since(start)
		metrics.RecordWorkerExecution(worker.Name(), duration, err)
		if recorder != nil {
			recorder.SetRunning(false)
			if err != nil {
				recorder.RecordError(err, duration)
			} else {
				recorder.RecordRun(duration)
			}
		}
	}()

	err = worker.Run(s.ctx)
	if err != nil {
		s.log.Errorw("Worker execution failed",
			"worker", worker.Name(),
			"error", err,
			"duration", time.Since(start),
		)
		return
	}

	s.log.Debugw("Worker execution completed",
		"worker", worker.Name(),
		"duration", time.Since(start),
	)
}

// GetWorkers returns a list of all registered workers (for debugging/monitoring)
func (s *Scheduler) GetWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers := make([]Worker, len(s.workers))
	copy(workers, s.workers)
	return workers
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Health returns health snapshots of every registered worker that reports them
func (s *Scheduler) Health() map[string]WorkerHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := make(map[string]WorkerHealth, len(s.workers))
	for _, w := range s.workers {
		if h, ok := w.(WorkerWithHealth); ok {
			health[w.Name()] = h.Health()
		}
	}
	return health
}
