package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
)

// Compile-time check
var _ optionsflow.SnapshotRepository = (*OptionsSnapshotRepository)(nil)

// OptionsSnapshotRepository stores per-run options aggregates in ClickHouse
type OptionsSnapshotRepository struct {
	conn driver.Conn
}

// NewOptionsSnapshotRepository creates a new snapshot repository
func NewOptionsSnapshotRepository(conn driver.Conn) *OptionsSnapshotRepository {
	return &OptionsSnapshotRepository{conn: conn}
}

// InsertSnapshots writes all snapshots of one run in a single batch
func (r *OptionsSnapshotRepository) InsertSnapshots(ctx context.Context, snapshots []optionsflow.OptionsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO options_snapshots (
			run_id, ticker, timestamp, expiration_date, current_price,
			call_volume, put_volume, call_oi, put_oi, put_call_ratio,
			max_pain_price, max_pain_delta,
			max_volume_strike, max_oi_strike, max_voi_strike,
			direction, stance
		)`)
	if err != nil {
		return errors.Wrap(err, "prepare options snapshot batch")
	}

	for i := range snapshots {
		if err := batch.AppendStruct(&snapshots[i]); err != nil {
			_ = batch.Abort()
			return errors.Wrapf(err, "append options snapshot %s", snapshots[i].Ticker)
		}
	}

	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "send options snapshot batch")
	}

	return nil
}

// GetSnapshotHistory returns the snapshots of ticker since the given time, newest first
func (r *OptionsSnapshotRepository) GetSnapshotHistory(ctx context.Context, ticker string, since time.Time, limit int) ([]optionsflow.OptionsSnapshot, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT
			run_id, ticker, timestamp, expiration_date, current_price,
			call_volume, put_volume, call_oi, put_oi, put_call_ratio,
			max_pain_price, max_pain_delta,
			max_volume_strike, max_oi_strike, max_voi_strike,
			direction, stance
		FROM options_snapshots
		WHERE ticker = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	var snapshots []optionsflow.OptionsSnapshot
	if err := r.conn.Select(ctx, &snapshots, query, ticker, since, limit); err != nil {
		return nil, errors.Wrap(err, "query options snapshot history")
	}

	return snapshots, nil
}
