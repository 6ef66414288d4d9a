package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"optionsflow/pkg/logger"
)

// tickerLister is the registry read used for the tracked-ticker gauge
type tickerLister interface {
	List(ctx context.Context) ([]string, error)
}

// breakerStater exposes the chain source breaker state ("closed", "half-open", "open")
type breakerStater interface {
	BreakerState() string
}

// CustomCollector collects gauges that are read from storage at scrape time
type CustomCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB
	registry tickerLister
	source   breakerStater

	// Descriptors
	trackedTickers *prometheus.Desc
	historyRecords *prometheus.Desc
	latestAnalysis *prometheus.Desc
	breakerState   *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector. Any dependency may be nil.
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, registry tickerLister, source breakerStater) *CustomCollector {
	return &CustomCollector{
		log:      log,
		postgres: postgres,
		registry: registry,
		source:   source,

		trackedTickers: prometheus.NewDesc(
			"optionsflow_tracked_tickers",
			"Number of tickers in the registry",
			nil, nil,
		),
		historyRecords: prometheus.NewDesc(
			"optionsflow_history_records",
			"Number of stored analysis records per ticker",
			[]string{"ticker"}, nil,
		),
		latestAnalysis: prometheus.NewDesc(
			"optionsflow_latest_analysis_timestamp",
			"Unix timestamp of the newest stored analysis per ticker",
			[]string{"ticker"}, nil,
		),
		breakerState: prometheus.NewDesc(
			"optionsflow_chain_source_breaker_state",
			"Chain source circuit breaker state (0=closed, 1=half-open, 2=open)",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.trackedTickers
	ch <- c.historyRecords
	ch <- c.latestAnalysis
	ch <- c.breakerState
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectTrackedTickers(ctx, ch)
	c.collectHistoryStats(ctx, ch)
	c.collectBreakerState(ch)
}

func (c *CustomCollector) collectTrackedTickers(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.registry == nil {
		return
	}

	tickers, err := c.registry.List(ctx)
	if err != nil {
		c.log.Warnw("Failed to collect tracked ticker count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.trackedTickers,
		prometheus.GaugeValue,
		float64(len(tickers)),
	)
}

func (c *CustomCollector) collectHistoryStats(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.postgres == nil {
		return
	}

	type historyStat struct {
		Ticker string `db:"ticker"`
		Count  int    `db:"count"`
		Latest int64  `db:"latest"`
	}

	var stats []historyStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT ticker, COUNT(*) AS count, MAX(timestamp) AS latest
		FROM analysis_history
		GROUP BY ticker
	`)
	if err != nil {
		c.log.Warnw("Failed to collect history stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.historyRecords,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Ticker,
		)
		ch <- prometheus.MustNewConstMetric(
			c.latestAnalysis,
			prometheus.GaugeValue,
			float64(stat.Latest)/1000,
			stat.Ticker,
		)
	}
}

func (c *CustomCollector) collectBreakerState(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}

	value := 0.0
	switch c.source.BreakerState() {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}

	ch <- prometheus.MustNewConstMetric(
		c.breakerState,
		prometheus.GaugeValue,
		value,
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
