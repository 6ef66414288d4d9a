package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/config"
	"optionsflow/internal/domain/optionsflow"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper creates a ClickHouse client for tests and ensures the snapshot schema.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	client, err := clickhouse.NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to ensure clickhouse schema: %v", err)
	}

	return &ClickHouseTestHelper{client: client}
}

// CreateTempTable creates a temporary table and registers cleanup.
func (h *ClickHouseTestHelper) CreateTempTable(t *testing.T, schema string) string {
	t.Helper()

	table := fmt.Sprintf("tmp_test_%d", time.Now().UnixNano())
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY tuple()", table, schema)

	if err := h.client.Exec(context.Background(), query); err != nil {
		t.Fatalf("failed to create clickhouse table: %v", err)
	}

	t.Cleanup(func() {
		_ = h.client.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})

	return table
}

// CleanupTable drops the provided table immediately.
func (h *ClickHouseTestHelper) CleanupTable(ctx context.Context, table string) error {
	return h.client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
}

// RegisterTickerCleanup deletes the snapshot rows of ticker after the test completes
func (h *ClickHouseTestHelper) RegisterTickerCleanup(t *testing.T, ticker string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Lightweight DELETE is visible immediately, ALTER TABLE DELETE is async
		_ = h.client.Exec(ctx, "DELETE FROM options_snapshots WHERE ticker = ?", ticker)
	})
}

// Client exposes the raw ClickHouse client for queries.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// SnapshotFixture builds OptionsSnapshot rows with sensible defaults
type SnapshotFixture struct {
	snapshot optionsflow.OptionsSnapshot
}

// NewSnapshotFixture starts from a neutral AAPL row
func NewSnapshotFixture() *SnapshotFixture {
	return &SnapshotFixture{snapshot: optionsflow.OptionsSnapshot{
		RunID:           UniqueString(),
		Ticker:          "AAPL",
		Timestamp:       time.Now().UTC().Truncate(time.Millisecond),
		ExpirationDate:  "Jul 26",
		CurrentPrice:    227.52,
		CallVolume:      12000,
		PutVolume:       8000,
		CallOI:          50000,
		PutOI:           40000,
		PutCallRatio:    0.67,
		MaxPainPrice:    225,
		MaxVolumeStrike: 230,
		MaxOIStrike:     230,
		MaxVOIStrike:    235,
		Direction:       string(optionsflow.DirectionUp),
		Stance:          string(optionsflow.StanceLong),
	}}
}

func (f *SnapshotFixture) WithTicker(ticker string) *SnapshotFixture {
	f.snapshot.Ticker = ticker
	return f
}

func (f *SnapshotFixture) WithRunID(runID string) *SnapshotFixture {
	f.snapshot.RunID = runID
	return f
}

func (f *SnapshotFixture) WithTimestamp(ts time.Time) *SnapshotFixture {
	f.snapshot.Timestamp = ts.UTC()
	return f
}

func (f *SnapshotFixture) WithPutCallRatio(ratio float64) *SnapshotFixture {
	f.snapshot.PutCallRatio = ratio
	return f
}

// Bearish flips the row to a put-heavy consensus
func (f *SnapshotFixture) Bearish() *SnapshotFixture {
	f.snapshot.PutCallRatio = 1.6
	f.snapshot.Direction = string(optionsflow.DirectionDown)
	f.snapshot.Stance = string(optionsflow.StanceShort)
	return f
}

func (f *SnapshotFixture) Build() optionsflow.OptionsSnapshot {
	return f.snapshot
}

// BuildMany returns count rows one interval apart, oldest first
func (f *SnapshotFixture) BuildMany(count int, interval time.Duration) []optionsflow.OptionsSnapshot {
	base := f.snapshot
	return BuildManyWith(base, count, func(s optionsflow.OptionsSnapshot, i int) optionsflow.OptionsSnapshot {
		s.Timestamp = base.Timestamp.Add(time.Duration(i) * interval)
		s.RunID = UniqueString()
		return s
	})
}

// BuildManyWith is a generic helper to create multiple instances with custom modifications
func BuildManyWith[T any](base T, count int, modifier func(T, int) T) []T {
	items := make([]T, count)
	for i := 0; i < count; i++ {
		items[i] = modifier(base, i)
	}
	return items
}
