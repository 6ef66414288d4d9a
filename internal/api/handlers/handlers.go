package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/logger"
)

// quoteSource proxies raw option-chain requests upstream
type quoteSource interface {
	FetchRaw(ctx context.Context, ticker string, rawQuery string) ([]byte, error)
}

// Handlers serves the query surface. Every endpoint is a pass-through over a
// store or the chain source; none of them runs analysis.
type Handlers struct {
	registry  optionsflow.TickerRegistry
	history   optionsflow.HistoryRepository
	snapshots optionsflow.SnapshotRepository
	quotes    quoteSource
	log       *logger.Logger
}

// New creates the handler set; snapshots may be nil when ClickHouse is disabled
func New(
	registry optionsflow.TickerRegistry,
	history optionsflow.HistoryRepository,
	snapshots optionsflow.SnapshotRepository,
	quotes quoteSource,
	log *logger.Logger,
) *Handlers {
	return &Handlers{
		registry:  registry,
		history:   history,
		snapshots: snapshots,
		quotes:    quotes,
		log:       log,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warnw("Failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// NotFound is the router fallback
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, "Not found")
}
