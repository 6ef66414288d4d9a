package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"optionsflow/internal/workers"
	"optionsflow/pkg/logger"
)

// Checker probes one dependency
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) error

// Health implements Checker
func (f CheckerFunc) Health(ctx context.Context) error { return f(ctx) }

// sourceState reports the chain source circuit breaker
type sourceState interface {
	BreakerState() string
}

// workerHealth reports scheduler worker snapshots
type workerHealth interface {
	Health() map[string]workers.WorkerHealth
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      map[string]Checker
	source      sourceState
	workers     workerHealth
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler. Readiness requires every registered check to pass.
func New(log *logger.Logger, serviceName string, version string) *Handler {
	return &Handler{
		log:         log,
		checks:      make(map[string]Checker),
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// AddCheck registers a dependency probe
func (h *Handler) AddCheck(name string, c Checker) *Handler {
	h.checks[name] = c
	return h
}

// WithChainSource adds the upstream breaker state to /health
func (h *Handler) WithChainSource(s sourceState) *Handler {
	h.source = s
	return h
}

// WithWorkers adds scheduler worker health to /health
func (h *Handler) WithWorkers(w workerHealth) *Handler {
	h.workers = w
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status      string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service     string                     `json:"service"`
	Version     string                     `json:"version"`
	Uptime      string                     `json:"uptime"`
	Timestamp   string                     `json:"timestamp"`
	Checks      map[string]ComponentHealth `json:"checks"`
	Workers     map[string]WorkerStatus    `json:"workers,omitempty"`
	ErrorDetail string                     `json:"error_detail,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WorkerStatus is the public view of a worker's health
type WorkerStatus struct {
	Enabled    bool   `json:"enabled"`
	Running    bool   `json:"running"`
	LastRun    string `json:"last_run,omitempty"`
	RunCount   int64  `json:"run_count"`
	ErrorCount int64  `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`
}

// HandleLiveness returns 200 OK if service is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness checks if service is ready to accept traffic
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx)

	status := h.status(checks)
	statusCode := http.StatusOK
	if healthy < len(checks) {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", checks)
	}

	writeJSON(w, statusCode, status)
}

// HandleHealth returns detailed health status (includes all checks)
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	total := len(checks)

	if h.source != nil {
		total++
		state := h.source.BreakerState()
		if state == "closed" {
			healthy++
			checks["chain_source"] = ComponentHealth{Status: "healthy"}
		} else {
			checks["chain_source"] = ComponentHealth{Status: "unhealthy", Error: "circuit breaker " + state}
		}
	}

	status := h.status(checks)
	if h.workers != nil {
		status.Workers = workerStatuses(h.workers.Health())
	}

	statusCode := http.StatusOK
	switch {
	case total > 0 && healthy == 0:
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case healthy < total:
		// Still 200 for degraded
		status.Status = "degraded"
	}

	writeJSON(w, statusCode, status)
}

func (h *Handler) status(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

func (h *Handler) runChecks(ctx context.Context) (map[string]ComponentHealth, int) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]ComponentHealth, len(names))
	healthy := 0
	for _, name := range names {
		result := h.check(ctx, name, h.checks[name])
		results[name] = result
		if result.Status == "healthy" {
			healthy++
		}
	}
	return results, healthy
}

func (h *Handler) check(ctx context.Context, name string, c Checker) ComponentHealth {
	start := time.Now()
	err := c.Health(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Warnw("Health check failed", "component", name, "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}

func workerStatuses(health map[string]workers.WorkerHealth) map[string]WorkerStatus {
	out := make(map[string]WorkerStatus, len(health))
	for name, wh := range health {
		ws := WorkerStatus{
			Enabled:    wh.Enabled,
			Running:    wh.IsRunning,
			RunCount:   wh.RunCount,
			ErrorCount: wh.ErrorCount,
		}
		if !wh.LastRun.IsZero() {
			ws.LastRun = wh.LastRun.Format(time.RFC3339)
		}
		if wh.LastError != nil {
			ws.LastError = wh.LastError.Error()
		}
		out[name] = ws
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
