package derivatives

import (
	"context"
	"sync"
	"time"

	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
)

// OptionsFlowAnalyzer is the scheduled entry point of the batch run.
// Ticker failures never surface as worker errors; only run-level failures do.
type OptionsFlowAnalyzer struct {
	*workers.BaseWorker
	runner *AnalysisRunner

	lastMu sync.RWMutex
	last   BatchResult
}

// NewOptionsFlowAnalyzer creates a new options flow analyzer worker
func NewOptionsFlowAnalyzer(runner *AnalysisRunner, interval time.Duration, enabled bool, runOnStart bool) *OptionsFlowAnalyzer {
	w := &OptionsFlowAnalyzer{
		BaseWorker: workers.NewBaseWorker("options_flow_analyzer", interval, enabled),
		runner:     runner,
	}
	w.SetRunOnStart(runOnStart)
	return w
}

// Run executes one batch
func (w *OptionsFlowAnalyzer) Run(ctx context.Context) error {
	w.Log().Debug("Options flow analyzer: starting iteration")

	result := w.runner.RunBatch(ctx)
	w.lastMu.Lock()
	w.last = result
	w.lastMu.Unlock()

	if result.Err != nil {
		return errors.Wrap(result.Err, "options flow batch")
	}
	return nil
}

// LastResult returns the outcome of the most recent iteration
func (w *OptionsFlowAnalyzer) LastResult() BatchResult {
	w.lastMu.RLock()
	defer w.lastMu.RUnlock()
	return w.last
}
