package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/internal/testsupport"
)

func TestOptionsSnapshotRepository_InsertAndQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	helper := testsupport.NewClickHouseTestHelper(t, testsupport.LoadClickHouseConfigFromEnv(t))

	ticker := testsupport.UniqueTicker("CH")
	helper.RegisterTickerCleanup(t, ticker)

	repo := NewOptionsSnapshotRepository(helper.Client().Conn())
	now := time.Now().UTC().Truncate(time.Millisecond)

	snapshots := []optionsflow.OptionsSnapshot{
		testsupport.NewSnapshotFixture().WithTicker(ticker).WithRunID("run-a").WithTimestamp(now.Add(-time.Hour)).Build(),
		testsupport.NewSnapshotFixture().WithTicker(ticker).WithRunID("run-b").WithTimestamp(now).Bearish().Build(),
	}
	require.NoError(t, repo.InsertSnapshots(context.Background(), snapshots))

	history, err := repo.GetSnapshotHistory(context.Background(), ticker, now.Add(-2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "run-b", history[0].RunID)
	assert.Equal(t, 1.6, history[0].PutCallRatio)
	assert.Equal(t, "up", history[1].Direction)
}

func TestOptionsSnapshotRepository_InsertEmpty(t *testing.T) {
	repo := NewOptionsSnapshotRepository(nil)
	assert.NoError(t, repo.InsertSnapshots(context.Background(), nil))
}
