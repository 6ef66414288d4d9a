package events

import (
	"context"

	"optionsflow/internal/adapters/kafka"
	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const (
	EventAnalysisCompleted = "options.analysis.completed"
	EventBatchCompleted    = "options.batch.completed"
)

// messagePublisher is the part of kafka.Producer the publisher needs
type messagePublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// AnalysisCompletedEvent announces one analyzed ticker
type AnalysisCompletedEvent struct {
	BaseEvent
	Ticker         string                  `json:"ticker"`
	TimestampMs    int64                   `json:"timestamp_ms"`
	CurrentPrice   float64                 `json:"current_price"`
	ExpirationDate string                  `json:"expiration_date"`
	MaxPainPrice   float64                 `json:"max_pain_price"`
	PutCallRatio   float64                 `json:"put_call_ratio"`
	Direction      optionsflow.Direction   `json:"direction"`
	Stance         optionsflow.Stance      `json:"stance"`
	TradingPlan    optionsflow.TradingPlan `json:"trading_plan"`
}

// TickerFailure is one ticker excluded from a batch
type TickerFailure struct {
	Ticker string `json:"ticker"`
	Error  string `json:"error"`
}

// BatchCompletedEvent summarizes one batch run
type BatchCompletedEvent struct {
	BaseEvent
	Tickers    int             `json:"tickers"`
	Analyzed   int             `json:"analyzed"`
	Failed     []TickerFailure `json:"failed"`
	Persisted  bool            `json:"persisted"`
	DurationMs int64           `json:"duration_ms"`
}

// AnalysisPublisher publishes analysis results to Kafka
type AnalysisPublisher struct {
	producer messagePublisher
	log      *logger.Logger
}

// NewAnalysisPublisher creates a new analysis publisher
func NewAnalysisPublisher(producer messagePublisher) *AnalysisPublisher {
	return &AnalysisPublisher{
		producer: producer,
		log:      logger.Get().With("component", "analysis_publisher"),
	}
}

// PublishAnalysis publishes one event per analyzed ticker, keyed by ticker
func (p *AnalysisPublisher) PublishAnalysis(ctx context.Context, runID string, payload *optionsflow.AnalysisPayload, timestampMs int64) error {
	event := AnalysisCompletedEvent{
		BaseEvent:      NewBaseEvent(EventAnalysisCompleted, runID),
		Ticker:         payload.Ticker,
		TimestampMs:    timestampMs,
		CurrentPrice:   payload.CurrentPrice,
		ExpirationDate: payload.ExpirationDate,
		MaxPainPrice:   payload.MaxPainPrice,
		PutCallRatio:   payload.Metrics.PutCallRatio,
		Direction:      payload.Analysis.ConsensusDirection,
		Stance:         payload.Analysis.Stance,
		TradingPlan:    payload.Analysis.TradingPlan,
	}

	if err := p.producer.Publish(ctx, kafka.TopicAnalysisCompleted, payload.Ticker, event); err != nil {
		return errors.Wrapf(err, "publish analysis for %s", payload.Ticker)
	}
	return nil
}

// PublishBatch publishes the run summary keyed by run id
func (p *AnalysisPublisher) PublishBatch(ctx context.Context, event BatchCompletedEvent) error {
	for i := range event.Failed {
		event.Failed[i].Error = SanitizeUTF8(event.Failed[i].Error)
	}

	if err := p.producer.Publish(ctx, kafka.TopicBatchCompleted, event.RunID, event); err != nil {
		return errors.Wrapf(err, "publish batch summary %s", event.RunID)
	}

	p.log.Debugw("Published batch summary", "run_id", event.RunID, "analyzed", event.Analyzed, "failed", len(event.Failed))
	return nil
}
