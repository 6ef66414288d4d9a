package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optionsflow_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optionsflow_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Chain source metrics
	ChainFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_chain_fetches_total",
			Help: "Total number of option chain fetches",
		},
		[]string{"source", "status"}, // status: success|error|empty
	)

	ChainFetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optionsflow_chain_fetch_latency_seconds",
			Help:    "Option chain fetch latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	MalformedFields = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_malformed_fields_total",
			Help: "Upstream numeric fields that could not be parsed and were defaulted to 0",
		},
		[]string{"ticker"},
	)

	// Analysis metrics
	Analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_analyses_total",
			Help: "Total number of completed ticker analyses",
		},
		[]string{"direction", "stance"},
	)

	BatchTickers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_batch_tickers_total",
			Help: "Tickers processed by batch runs",
		},
		[]string{"status"}, // status: analyzed|failed
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optionsflow_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_http_requests_total",
			Help: "Total HTTP requests served by the query API",
		},
		[]string{"route", "method", "code"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	MustRegister(prometheus.DefaultRegisterer)
}

// MustRegister registers every collector with the given registerer
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		WorkerExecutions,
		WorkerDuration,
		WorkerLastRun,
		ChainFetches,
		ChainFetchLatency,
		MalformedFields,
		Analyses,
		BatchTickers,
		DBQueries,
		DBQueryDuration,
		KafkaMessages,
		HTTPRequests,
	)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordChainFetch records one upstream chain fetch
func RecordChainFetch(source string, latency time.Duration, err error) {
	ChainFetches.WithLabelValues(source, status(err)).Inc()
	ChainFetchLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordEmptyChain records a fetch that succeeded but carried no usable chain
func RecordEmptyChain(source string) {
	ChainFetches.WithLabelValues(source, "empty").Inc()
}

// RecordMalformed records defaulted upstream fields for a ticker
func RecordMalformed(ticker string, count int) {
	if count > 0 {
		MalformedFields.WithLabelValues(ticker).Add(float64(count))
	}
}

// RecordAnalysis records a completed analysis
func RecordAnalysis(direction, stance string) {
	Analyses.WithLabelValues(direction, stance).Inc()
}

// RecordBatch records the outcome counts of one batch run
func RecordBatch(analyzed, failed int) {
	BatchTickers.WithLabelValues("analyzed").Add(float64(analyzed))
	BatchTickers.WithLabelValues("failed").Add(float64(failed))
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced message
func RecordKafkaMessage(topic string, err error) {
	KafkaMessages.WithLabelValues(topic, status(err)).Inc()
}

// RecordHTTPRequest records one served request
func RecordHTTPRequest(route, method string, code int) {
	HTTPRequests.WithLabelValues(route, method, httpCode(code)).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
