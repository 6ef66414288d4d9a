package derivatives

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/internal/events"
	"optionsflow/internal/metrics"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const (
	batchLockKey   = "options_flow_batch"
	chainSourceTag = "nasdaq"
)

// analysisPublisher is satisfied by events.AnalysisPublisher
type analysisPublisher interface {
	PublishAnalysis(ctx context.Context, runID string, payload *optionsflow.AnalysisPayload, timestampMs int64) error
	PublishBatch(ctx context.Context, event events.BatchCompletedEvent) error
}

// batchLocker guards against overlapping runs across replicas
type batchLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// RunnerConfig bounds one batch run
type RunnerConfig struct {
	MaxConcurrency int
	TickerTimeout  time.Duration
	StoreTimeout   time.Duration
	LockTTL        time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.TickerTimeout <= 0 {
		c.TickerTimeout = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 15 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	return c
}

// TickerResult is the outcome of one ticker in a run; Err is set when the ticker was excluded
type TickerResult struct {
	Ticker  string
	Payload *optionsflow.AnalysisPayload
	Record  optionsflow.AnalysisRecord
	Err     error
}

// BatchResult summarizes one run
type BatchResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Results   []TickerResult
	Analyzed  int
	Failed    int
	Persisted bool
	// Skipped is set when another run held the batch lock
	Skipped bool
	// Err is a run-level failure (registry unreachable); ticker failures live in Results
	Err error
}

// Records returns the history records of every analyzed ticker in registry order
func (b BatchResult) Records() []optionsflow.AnalysisRecord {
	records := make([]optionsflow.AnalysisRecord, 0, b.Analyzed)
	for _, r := range b.Results {
		if r.Err == nil {
			records = append(records, r.Record)
		}
	}
	return records
}

// RunnerOption configures optional sinks of an AnalysisRunner
type RunnerOption func(*AnalysisRunner)

// WithSnapshotRepository enables the ClickHouse analytics sink
func WithSnapshotRepository(repo optionsflow.SnapshotRepository) RunnerOption {
	return func(r *AnalysisRunner) { r.snapshots = repo }
}

// WithPublisher enables Kafka events
func WithPublisher(p analysisPublisher) RunnerOption {
	return func(r *AnalysisRunner) { r.publisher = p }
}

// WithLocker enables the distributed batch lock
func WithLocker(l batchLocker) RunnerOption {
	return func(r *AnalysisRunner) { r.locker = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) RunnerOption {
	return func(r *AnalysisRunner) { r.now = now }
}

// AnalysisRunner fetches, analyzes and persists the option chains of every registered ticker
type AnalysisRunner struct {
	source    optionsflow.ChainSource
	registry  optionsflow.TickerRegistry
	history   optionsflow.HistoryRepository
	snapshots optionsflow.SnapshotRepository
	publisher analysisPublisher
	locker    batchLocker
	cfg       RunnerConfig
	now       func() time.Time
	log       *logger.Logger
}

// NewAnalysisRunner creates a new batch runner. registry and history may be nil
// for one-shot runs that analyze explicit tickers without persisting.
func NewAnalysisRunner(
	source optionsflow.ChainSource,
	registry optionsflow.TickerRegistry,
	history optionsflow.HistoryRepository,
	cfg RunnerConfig,
	opts ...RunnerOption,
) *AnalysisRunner {
	r := &AnalysisRunner{
		source:   source,
		registry: registry,
		history:  history,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		log:      logger.Get().With("component", "analysis_runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunBatch analyzes every ticker of the registry and persists the results.
// It never returns an error: failures are logged and reported in BatchResult.
func (r *AnalysisRunner) RunBatch(ctx context.Context) BatchResult {
	if r.locker != nil {
		token, acquired, err := r.locker.AcquireLock(ctx, batchLockKey, r.cfg.LockTTL)
		switch {
		case err != nil:
			r.log.Warnw("Batch lock unavailable, running without it", "error", err)
		case !acquired:
			r.log.Infow("Another analysis run holds the batch lock, skipping")
			return BatchResult{Skipped: true}
		default:
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StoreTimeout)
				defer cancel()
				if err := r.locker.ReleaseLock(releaseCtx, batchLockKey, token); err != nil {
					r.log.Warnw("Failed to release batch lock", "error", err)
				}
			}()
		}
	}

	if r.registry == nil {
		return BatchResult{Err: errors.Wrap(errors.ErrInternal, "ticker registry not configured")}
	}

	tickers, err := r.registry.List(ctx)
	if err != nil {
		r.log.Errorw("Failed to load ticker registry", "error", err)
		return BatchResult{Err: errors.Wrap(err, "load ticker registry")}
	}
	if len(tickers) == 0 {
		r.log.Info("Ticker registry is empty, nothing to analyze")
		return BatchResult{}
	}

	return r.RunTickers(ctx, tickers, true)
}

// RunTickers analyzes the given tickers with per-ticker isolation and, when
// persist is set, flushes the accumulated records to the configured sinks.
func (r *AnalysisRunner) RunTickers(ctx context.Context, tickers []string, persist bool) BatchResult {
	result := BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		Results:   make([]TickerResult, len(tickers)),
	}
	log := r.log.With("run_id", result.RunID)

	log.Infow("Options flow analysis started",
		"tickers", len(tickers),
		"max_concurrency", r.cfg.MaxConcurrency,
	)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, r.cfg.MaxConcurrency)

	for i, ticker := range tickers {
		wg.Add(1)
		go func(i int, ticker string) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				result.Results[i] = TickerResult{Ticker: ticker, Err: errors.Wrap(context.Cause(ctx), "run canceled before fetch")}
				return
			}

			result.Results[i] = r.analyzeTicker(ctx, ticker, result.StartedAt)
		}(i, ticker)
	}
	wg.Wait()

	var callVolume, putVolume int64
	for _, tr := range result.Results {
		if tr.Err != nil {
			result.Failed++
			log.Warnw("Ticker excluded from batch", "ticker", tr.Ticker, "error", tr.Err)
			continue
		}
		result.Analyzed++
		callVolume += tr.Payload.Metrics.TotalCallVolume
		putVolume += tr.Payload.Metrics.TotalPutVolume
	}

	if persist {
		result.Persisted = r.flush(ctx, log, &result)
	}

	result.Duration = r.now().Sub(result.StartedAt)
	metrics.RecordBatch(result.Analyzed, result.Failed)

	log.Infow("Options flow analysis finished",
		"analyzed", result.Analyzed,
		"failed", result.Failed,
		"persisted", result.Persisted,
		"call_volume", humanize.Comma(callVolume),
		"put_volume", humanize.Comma(putVolume),
		"duration", result.Duration,
	)

	return result
}

// analyzeTicker runs fetch, normalize and analyze for one ticker. Panics are
// converted into the ticker's error so one bad chain never aborts the batch.
func (r *AnalysisRunner) analyzeTicker(ctx context.Context, ticker string, at time.Time) (res TickerResult) {
	res.Ticker = ticker

	defer func() {
		if p := recover(); p != nil {
			res = TickerResult{Ticker: ticker, Err: errors.Newf("analysis panicked: %v", p)}
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, r.cfg.TickerTimeout)
	defer cancel()

	start := time.Now()
	raw, err := r.source.FetchChain(tctx, ticker)
	metrics.RecordChainFetch(chainSourceTag, time.Since(start), err)
	if err != nil {
		res.Err = errors.Wrapf(err, "fetch chain for %s", ticker)
		return res
	}

	snapshot, err := optionsflow.NormalizeChain(raw)
	if err != nil {
		if errors.Is(err, errors.ErrEmptyChain) {
			metrics.RecordEmptyChain(chainSourceTag)
		}
		res.Err = err
		return res
	}
	if snapshot.Ticker == "" {
		snapshot.Ticker = ticker
	}
	metrics.RecordMalformed(ticker, snapshot.MalformedFields)
	if snapshot.MalformedFields > 0 {
		r.log.Debugw("Defaulted malformed chain fields", "ticker", ticker, "count", snapshot.MalformedFields)
	}

	payload := optionsflow.Analyze(snapshot)
	record, err := optionsflow.NewAnalysisRecord(payload, at)
	if err != nil {
		res.Err = err
		return res
	}

	metrics.RecordAnalysis(string(payload.Analysis.ConsensusDirection), string(payload.Analysis.Stance))

	res.Payload = payload
	res.Record = record
	return res
}

// flush writes accumulated records with a fresh bounded context so a canceled
// run still persists what it finished. A hard shutdown discards them instead.
func (r *AnalysisRunner) flush(ctx context.Context, log *logger.Logger, result *BatchResult) bool {
	if workers.Aborted(ctx) {
		log.Warnw("Hard shutdown, discarding batch", "analyzed", result.Analyzed)
		return false
	}

	records := result.Records()
	if len(records) == 0 {
		log.Info("No records to persist")
		return false
	}

	storeCtx, cancel := context.WithTimeout(workers.Detached(ctx), r.cfg.StoreTimeout)
	defer cancel()

	persisted := false
	if r.history == nil {
		log.Warn("History store not configured, records not persisted")
	} else {
		start := time.Now()
		err := r.history.InsertBatch(storeCtx, records)
		metrics.RecordDBQuery("postgres", "insert_batch", time.Since(start), err)
		if err != nil {
			log.Errorw("Failed to persist analysis batch", "records", len(records), "error", err)
		} else {
			persisted = true
		}
	}

	r.writeSnapshots(storeCtx, log, result)
	r.publish(storeCtx, log, result, persisted)

	return persisted
}

func (r *AnalysisRunner) writeSnapshots(ctx context.Context, log *logger.Logger, result *BatchResult) {
	if r.snapshots == nil {
		return
	}

	snapshots := make([]optionsflow.OptionsSnapshot, 0, result.Analyzed)
	for _, tr := range result.Results {
		if tr.Err == nil {
			snapshots = append(snapshots, optionsflow.NewOptionsSnapshot(result.RunID, tr.Payload, result.StartedAt))
		}
	}

	start := time.Now()
	err := r.snapshots.InsertSnapshots(ctx, snapshots)
	metrics.RecordDBQuery("clickhouse", "insert_snapshots", time.Since(start), err)
	if err != nil {
		log.Warnw("Failed to write options snapshots", "error", err)
	}
}

func (r *AnalysisRunner) publish(ctx context.Context, log *logger.Logger, result *BatchResult, persisted bool) {
	if r.publisher == nil {
		return
	}

	summary := events.BatchCompletedEvent{
		BaseEvent:  events.NewBaseEvent(events.EventBatchCompleted, result.RunID),
		Tickers:    len(result.Results),
		Analyzed:   result.Analyzed,
		Failed:     make([]events.TickerFailure, 0, result.Failed),
		Persisted:  persisted,
		DurationMs: r.now().Sub(result.StartedAt).Milliseconds(),
	}

	for _, tr := range result.Results {
		if tr.Err != nil {
			summary.Failed = append(summary.Failed, events.TickerFailure{Ticker: tr.Ticker, Error: tr.Err.Error()})
			continue
		}
		err := r.publisher.PublishAnalysis(ctx, result.RunID, tr.Payload, tr.Record.Timestamp)
		metrics.RecordKafkaMessage(events.EventAnalysisCompleted, err)
		if err != nil {
			log.Warnw("Failed to publish analysis event", "ticker", tr.Ticker, "error", err)
		}
	}

	err := r.publisher.PublishBatch(ctx, summary)
	metrics.RecordKafkaMessage(events.EventBatchCompleted, err)
	if err != nil {
		log.Warnw("Failed to publish batch summary", "error", err)
	}
}

// String renders a one-line summary for CLI output
func (b BatchResult) String() string {
	if b.Skipped {
		return "run skipped: batch lock held elsewhere"
	}
	return fmt.Sprintf("run %s: %d analyzed, %d failed, persisted=%t in %s",
		b.RunID, b.Analyzed, b.Failed, b.Persisted, b.Duration.Round(time.Millisecond))
}
