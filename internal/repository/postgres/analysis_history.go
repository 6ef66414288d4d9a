package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
)

// Compile-time check
var _ optionsflow.HistoryRepository = (*AnalysisHistoryRepository)(nil)

// AnalysisHistoryRepository is the append-only analysis log on PostgreSQL
type AnalysisHistoryRepository struct {
	db *sqlx.DB
}

// NewAnalysisHistoryRepository creates a new history repository
func NewAnalysisHistoryRepository(db *sqlx.DB) *AnalysisHistoryRepository {
	return &AnalysisHistoryRepository{db: db}
}

// InsertBatch appends all records in one transaction
func (r *AnalysisHistoryRepository) InsertBatch(ctx context.Context, records []optionsflow.AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO analysis_history (ticker, timestamp, current_price, analysis_data)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare history insert")
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Ticker, rec.Timestamp, rec.CurrentPrice, rec.AnalysisData); err != nil {
			return errors.Wrapf(err, "failed to insert history record %s at index %d", rec.Ticker, i)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit history batch")
	}

	return nil
}

// QueryByTicker returns every record of ticker, newest first
func (r *AnalysisHistoryRepository) QueryByTicker(ctx context.Context, ticker string) ([]optionsflow.AnalysisRecord, error) {
	query := `
		SELECT ticker, timestamp, current_price, analysis_data
		FROM analysis_history
		WHERE ticker = $1
		ORDER BY timestamp DESC`

	records := make([]optionsflow.AnalysisRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, ticker); err != nil {
		return nil, errors.Wrapf(err, "failed to query history for %s", ticker)
	}

	return records, nil
}
