package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickHouseCleanupDropsTable(t *testing.T) {
	helper := NewClickHouseTestHelper(t, LoadClickHouseConfigFromEnv(t))
	table := helper.CreateTempTable(t, "id UInt64, value String")

	require.NoError(t, helper.Client().Exec(context.Background(), "INSERT INTO "+table+" (id, value) VALUES (1, 'abc')"))

	var count uint64
	row := helper.Client().Conn().QueryRow(context.Background(), "SELECT count() FROM "+table)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, uint64(1), count)

	require.NoError(t, helper.CleanupTable(context.Background(), table))

	var exists uint8
	row = helper.Client().Conn().QueryRow(context.Background(), "EXISTS TABLE "+table)
	require.NoError(t, row.Scan(&exists))
	assert.Equal(t, uint8(0), exists)
}

func TestSnapshotFixture_BuildMany(t *testing.T) {
	start := time.Date(2024, 7, 26, 13, 0, 0, 0, time.UTC)

	rows := NewSnapshotFixture().WithTicker("TSLA").WithTimestamp(start).Bearish().BuildMany(3, time.Hour)

	require.Len(t, rows, 3)
	assert.Equal(t, start, rows[0].Timestamp)
	assert.Equal(t, start.Add(2*time.Hour), rows[2].Timestamp)
	assert.NotEqual(t, rows[0].RunID, rows[1].RunID)
	for _, r := range rows {
		assert.Equal(t, "TSLA", r.Ticker)
		assert.Equal(t, "down", r.Direction)
	}
}
