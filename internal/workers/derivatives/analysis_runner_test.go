package derivatives

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/internal/events"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
)

var fixedNow = time.Date(2024, 7, 26, 15, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func chainFor(ticker string) *optionsflow.RawSnapshot {
	s := optionsflow.StringField
	return &optionsflow.RawSnapshot{
		Ticker:    ticker,
		LastTrade: "LAST TRADE: $100.00 (AS OF JUL 26, 2024)",
		Rows: []optionsflow.RawRow{
			{ExpirationGroup: s("July 26, 2024")},
			{
				ExpiryDate: s("Jul 26"), Strike: s("110.00"),
				CallVolume: s("2,000"), CallOpenInterest: s("1,000"), CallLastPrice: s("1.25"),
				PutVolume: s("300"), PutOpenInterest: s("400"), PutLastPrice: s("0.50"),
			},
		},
	}
}

type fakeSource struct {
	fetch func(ctx context.Context, ticker string) (*optionsflow.RawSnapshot, error)
}

func (f *fakeSource) FetchChain(ctx context.Context, ticker string) (*optionsflow.RawSnapshot, error) {
	return f.fetch(ctx, ticker)
}

func sourceOf(failures map[string]error) *fakeSource {
	return &fakeSource{fetch: func(ctx context.Context, ticker string) (*optionsflow.RawSnapshot, error) {
		if err, ok := failures[ticker]; ok {
			return nil, err
		}
		return chainFor(ticker), nil
	}}
}

type fakeRegistry struct {
	tickers []string
	err     error
	calls   int
}

func (f *fakeRegistry) List(ctx context.Context) ([]string, error) {
	f.calls++
	return f.tickers, f.err
}

func (f *fakeRegistry) Replace(ctx context.Context, tickers []string) error {
	f.tickers = tickers
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	batches [][]optionsflow.AnalysisRecord
	ctxErr  error
	err     error
}

func (f *fakeHistory) InsertBatch(ctx context.Context, records []optionsflow.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.batches = append(f.batches, records)
	return f.err
}

func (f *fakeHistory) QueryByTicker(ctx context.Context, ticker string) ([]optionsflow.AnalysisRecord, error) {
	return nil, nil
}

type fakeSnapshots struct {
	rows []optionsflow.OptionsSnapshot
}

func (f *fakeSnapshots) InsertSnapshots(ctx context.Context, snapshots []optionsflow.OptionsSnapshot) error {
	f.rows = append(f.rows, snapshots...)
	return nil
}

func (f *fakeSnapshots) GetSnapshotHistory(ctx context.Context, ticker string, since time.Time, limit int) ([]optionsflow.OptionsSnapshot, error) {
	return f.rows, nil
}

type fakePublisher struct {
	analyses []string
	batches  []events.BatchCompletedEvent
}

func (f *fakePublisher) PublishAnalysis(ctx context.Context, runID string, payload *optionsflow.AnalysisPayload, timestampMs int64) error {
	f.analyses = append(f.analyses, payload.Ticker)
	return nil
}

func (f *fakePublisher) PublishBatch(ctx context.Context, event events.BatchCompletedEvent) error {
	f.batches = append(f.batches, event)
	return nil
}

type fakeLocker struct {
	held     bool
	released string
}

func (f *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if f.held {
		return "", false, nil
	}
	return "run-token", true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	f.released = token
	return nil
}

func testConfig() RunnerConfig {
	return RunnerConfig{MaxConcurrency: 2, TickerTimeout: time.Second, StoreTimeout: time.Second}
}

func TestRunBatch_IsolatesTickerFailures(t *testing.T) {
	registry := &fakeRegistry{tickers: []string{"AAPL", "DOWN", "TSLA", "NVDA"}}
	history := &fakeHistory{}
	source := &fakeSource{fetch: func(ctx context.Context, ticker string) (*optionsflow.RawSnapshot, error) {
		switch ticker {
		case "DOWN":
			return nil, errors.Wrap(errors.ErrSourceUnavailable, "status 503")
		case "TSLA":
			return &optionsflow.RawSnapshot{Ticker: "TSLA"}, nil
		}
		return chainFor(ticker), nil
	}}

	runner := NewAnalysisRunner(source, registry, history, testConfig(), WithClock(fixedClock))
	result := runner.RunBatch(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Analyzed)
	assert.Equal(t, 2, result.Failed)
	assert.True(t, result.Persisted)

	require.Len(t, result.Results, 4)
	assert.ErrorIs(t, result.Results[1].Err, errors.ErrSourceUnavailable)
	assert.ErrorIs(t, result.Results[2].Err, errors.ErrEmptyChain)

	require.Len(t, history.batches, 1)
	records := history.batches[0]
	require.Len(t, records, 2)
	assert.Equal(t, "AAPL", records[0].Ticker)
	assert.Equal(t, "NVDA", records[1].Ticker)
	assert.Equal(t, fixedNow.UnixMilli(), records[0].Timestamp)
	assert.Equal(t, 100.0, records[0].CurrentPrice)

	payload, err := records[0].Payload()
	require.NoError(t, err)
	assert.Equal(t, optionsflow.DirectionUp, payload.Analysis.ConsensusDirection)
}

func TestRunBatch_ResultsKeepRegistryOrder(t *testing.T) {
	tickers := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	runner := NewAnalysisRunner(sourceOf(nil), &fakeRegistry{tickers: tickers}, &fakeHistory{},
		RunnerConfig{MaxConcurrency: 3})

	result := runner.RunBatch(context.Background())

	require.Len(t, result.Results, len(tickers))
	for i, ticker := range tickers {
		assert.Equal(t, ticker, result.Results[i].Ticker)
	}
	assert.Equal(t, len(tickers), result.Analyzed)
}

func TestRunBatch_EmptyRegistry(t *testing.T) {
	history := &fakeHistory{}
	runner := NewAnalysisRunner(sourceOf(nil), &fakeRegistry{tickers: []string{}}, history, testConfig())

	result := runner.RunBatch(context.Background())

	assert.NoError(t, result.Err)
	assert.Zero(t, result.Analyzed)
	assert.Empty(t, history.batches)
}

func TestRunBatch_RegistryFailure(t *testing.T) {
	runner := NewAnalysisRunner(sourceOf(nil), &fakeRegistry{err: errors.New("redis down")}, &fakeHistory{}, testConfig())

	result := runner.RunBatch(context.Background())

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "redis down")
}

func TestRunBatch_CanceledRunStillFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aaplFetched := make(chan struct{})
	source := &fakeSource{fetch: func(fctx context.Context, ticker string) (*optionsflow.RawSnapshot, error) {
		if ticker == "AAPL" {
			defer close(aaplFetched)
			return chainFor(ticker), nil
		}
		<-aaplFetched
		cancel()
		<-fctx.Done()
		return nil, fctx.Err()
	}}
	history := &fakeHistory{}

	runner := NewAnalysisRunner(source, &fakeRegistry{tickers: []string{"AAPL", "SLOW"}}, history, testConfig())
	result := runner.RunBatch(ctx)

	assert.Equal(t, 1, result.Analyzed)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.Persisted)

	require.Len(t, history.batches, 1)
	assert.Len(t, history.batches[0], 1)
	assert.NoError(t, history.ctxErr, "flush must run on a live context")
}

func TestRunBatch_HardShutdownDiscards(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	aaplFetched := make(chan struct{})
	source := &fakeSource{fetch: func(fctx context.Context, ticker string) (*optionsflow.RawSnapshot, error) {
		if ticker == "AAPL" {
			defer close(aaplFetched)
			return chainFor(ticker), nil
		}
		<-aaplFetched
		cancel(workers.ErrHardShutdown)
		<-fctx.Done()
		return nil, fctx.Err()
	}}
	history := &fakeHistory{}

	runner := NewAnalysisRunner(source, &fakeRegistry{tickers: []string{"AAPL", "SLOW"}}, history, testConfig())
	result := runner.RunBatch(ctx)

	assert.Equal(t, 1, result.Analyzed)
	assert.False(t, result.Persisted)
	assert.Empty(t, history.batches)
}

func TestRunBatch_RecoversPanics(t *testing.T) {
	source := &fakeSource{fetch: func(ctx context.Context, ticker string) (*optionsflow.RawSnapshot, error) {
		if ticker == "BOOM" {
			panic("unexpected payload")
		}
		return chainFor(ticker), nil
	}}

	runner := NewAnalysisRunner(source, &fakeRegistry{tickers: []string{"BOOM", "AAPL"}}, &fakeHistory{}, testConfig())
	result := runner.RunBatch(context.Background())

	assert.Equal(t, 1, result.Analyzed)
	require.Error(t, result.Results[0].Err)
	assert.Contains(t, result.Results[0].Err.Error(), "panicked")
}

func TestRunBatch_PersistFailureIsReported(t *testing.T) {
	publisher := &fakePublisher{}
	history := &fakeHistory{err: errors.New("connection refused")}

	runner := NewAnalysisRunner(sourceOf(nil), &fakeRegistry{tickers: []string{"AAPL"}}, history, testConfig(),
		WithPublisher(publisher))
	result := runner.RunBatch(context.Background())

	assert.NoError(t, result.Err)
	assert.False(t, result.Persisted)
	require.Len(t, publisher.batches, 1)
	assert.False(t, publisher.batches[0].Persisted)
}

func TestRunBatch_OptionalSinks(t *testing.T) {
	snapshots := &fakeSnapshots{}
	publisher := &fakePublisher{}
	registry := &fakeRegistry{tickers: []string{"AAPL", "DOWN", "MSFT"}}
	source := sourceOf(map[string]error{"DOWN": errors.ErrSourceUnavailable})

	runner := NewAnalysisRunner(source, registry, &fakeHistory{}, testConfig(),
		WithSnapshotRepository(snapshots),
		WithPublisher(publisher),
		WithClock(fixedClock),
	)
	result := runner.RunBatch(context.Background())

	require.Len(t, snapshots.rows, 2)
	assert.Equal(t, result.RunID, snapshots.rows[0].RunID)
	assert.Equal(t, fixedNow, snapshots.rows[0].Timestamp)
	assert.Equal(t, int64(2000), snapshots.rows[0].CallVolume)

	assert.Equal(t, []string{"AAPL", "MSFT"}, publisher.analyses)
	require.Len(t, publisher.batches, 1)
	batch := publisher.batches[0]
	assert.Equal(t, result.RunID, batch.RunID)
	assert.Equal(t, 3, batch.Tickers)
	assert.Equal(t, 2, batch.Analyzed)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, "DOWN", batch.Failed[0].Ticker)
}

func TestRunBatch_SkipsWhenLockHeld(t *testing.T) {
	registry := &fakeRegistry{tickers: []string{"AAPL"}}
	runner := NewAnalysisRunner(sourceOf(nil), registry, &fakeHistory{}, testConfig(),
		WithLocker(&fakeLocker{held: true}))

	result := runner.RunBatch(context.Background())

	assert.True(t, result.Skipped)
	assert.Zero(t, registry.calls)
}

func TestRunBatch_ReleasesLock(t *testing.T) {
	locker := &fakeLocker{}
	runner := NewAnalysisRunner(sourceOf(nil), &fakeRegistry{tickers: []string{"AAPL"}}, &fakeHistory{}, testConfig(),
		WithLocker(locker))

	result := runner.RunBatch(context.Background())

	assert.False(t, result.Skipped)
	assert.Equal(t, "run-token", locker.released)
}

func TestRunTickers_WithoutPersist(t *testing.T) {
	runner := NewAnalysisRunner(sourceOf(nil), nil, nil, testConfig())

	result := runner.RunTickers(context.Background(), []string{"AAPL"}, false)

	assert.Equal(t, 1, result.Analyzed)
	assert.False(t, result.Persisted)
	require.NotNil(t, result.Results[0].Payload)
	assert.Equal(t, "AAPL", result.Results[0].Payload.Ticker)
}

func TestOptionsFlowAnalyzer_Run(t *testing.T) {
	ok := NewOptionsFlowAnalyzer(
		NewAnalysisRunner(sourceOf(map[string]error{"DOWN": errors.ErrSourceUnavailable}),
			&fakeRegistry{tickers: []string{"DOWN"}}, &fakeHistory{}, testConfig()),
		time.Hour, true, true,
	)
	assert.NoError(t, ok.Run(context.Background()), "ticker failures stay inside the batch")
	assert.Equal(t, 1, ok.LastResult().Failed)

	broken := NewOptionsFlowAnalyzer(
		NewAnalysisRunner(sourceOf(nil), &fakeRegistry{err: errors.New("redis down")}, &fakeHistory{}, testConfig()),
		time.Hour, true, false,
	)
	assert.Error(t, broken.Run(context.Background()))
	assert.False(t, broken.RunOnStart())
}

func TestOptionsFlowAnalyzer_LastResultDuringRun(t *testing.T) {
	w := NewOptionsFlowAnalyzer(
		NewAnalysisRunner(sourceOf(nil), &fakeRegistry{tickers: []string{"AAPL"}}, &fakeHistory{}, testConfig()),
		time.Hour, true, true,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = w.Run(context.Background())
		}
	}()

	for {
		select {
		case <-done:
			assert.Equal(t, 1, w.LastResult().Analyzed)
			return
		default:
			_ = w.LastResult()
		}
	}
}
