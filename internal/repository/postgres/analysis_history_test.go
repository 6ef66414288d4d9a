package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
)

func newMockRepo(t *testing.T) (*AnalysisHistoryRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewAnalysisHistoryRepository(sqlx.NewDb(db, "postgres")), mock
}

const insertPattern = `INSERT INTO analysis_history \(ticker, timestamp, current_price, analysis_data\)`

func TestAnalysisHistoryRepository_InsertBatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	records := []optionsflow.AnalysisRecord{
		{Ticker: "AAPL", Timestamp: 1721999400000, CurrentPrice: 227.52, AnalysisData: `{"ticker":"AAPL"}`},
		{Ticker: "TSLA", Timestamp: 1721999400000, CurrentPrice: 219.8, AnalysisData: `{"ticker":"TSLA"}`},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertPattern)
	prep.ExpectExec().WithArgs("AAPL", int64(1721999400000), 227.52, `{"ticker":"AAPL"}`).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("TSLA", int64(1721999400000), 219.8, `{"ticker":"TSLA"}`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisHistoryRepository_InsertBatchEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)

	require.NoError(t, repo.InsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisHistoryRepository_InsertBatchRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertPattern)
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), []optionsflow.AnalysisRecord{{Ticker: "AAPL"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AAPL")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisHistoryRepository_QueryByTicker(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"ticker", "timestamp", "current_price", "analysis_data"}).
		AddRow("AAPL", int64(1722085800000), 229.1, `{"n":2}`).
		AddRow("AAPL", int64(1721999400000), 227.52, `{"n":1}`)

	mock.ExpectQuery(regexp.QuoteMeta("FROM analysis_history")).
		WithArgs("AAPL").
		WillReturnRows(rows)

	records, err := repo.QueryByTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1722085800000), records[0].Timestamp)
	assert.Equal(t, 227.52, records[1].CurrentPrice)
	assert.Equal(t, `{"n":1}`, records[1].AnalysisData)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisHistoryRepository_QueryByTickerEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM analysis_history")).
		WithArgs("NONE").
		WillReturnRows(sqlmock.NewRows([]string{"ticker", "timestamp", "current_price", "analysis_data"}))

	records, err := repo.QueryByTicker(context.Background(), "NONE")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
