package optionsflow

import (
	"context"
	"time"
)

// ChainSource fetches the raw option chain of one ticker
type ChainSource interface {
	FetchChain(ctx context.Context, ticker string) (*RawSnapshot, error)
}

// TickerRegistry is the externally managed list of tickers to analyze
type TickerRegistry interface {
	List(ctx context.Context) ([]string, error)
	Replace(ctx context.Context, tickers []string) error
}

// HistoryRepository is the append-only analysis log
type HistoryRepository interface {
	InsertBatch(ctx context.Context, records []AnalysisRecord) error
	// QueryByTicker returns records newest first
	QueryByTicker(ctx context.Context, ticker string) ([]AnalysisRecord, error)
}

// SnapshotRepository stores per-run aggregates for time-series analytics
type SnapshotRepository interface {
	InsertSnapshots(ctx context.Context, snapshots []OptionsSnapshot) error
	GetSnapshotHistory(ctx context.Context, ticker string, since time.Time, limit int) ([]OptionsSnapshot, error)
}
