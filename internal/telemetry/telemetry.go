// Package telemetry exposes Prometheus metrics for the crawl pipeline.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moltbook_requests_total",
			Help: "Total Moltbook API requests, labeled by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	apiRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moltbook_request_duration_seconds",
			Help:    "Histogram of Moltbook API request latencies by endpoint.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	apiRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moltbook_retries_total",
			Help: "Total retried Moltbook API requests, labeled by reason.",
		},
		[]string{"reason"},
	)

	rateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moltbook_rate_limit_wait_seconds",
			Help:    "Histogram of pacing and rate-limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	scanPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_pages_total",
			Help: "Total pages processed by the view scanner, labeled by view.",
		},
		[]string{"view"},
	)

	scanOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_scans_total",
			Help: "Completed view scans, labeled by view and terminal outcome.",
		},
		[]string{"view", "outcome"},
	)

	graphRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_rows_total",
			Help: "Rows written to the graph, labeled by entity kind.",
		},
		[]string{"kind"},
	)

	stageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_stage_failures_total",
			Help: "Isolated stage failures, labeled by stage name.",
		},
		[]string{"stage"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_runs_total",
			Help: "Completed crawl runs, labeled by mode.",
		},
		[]string{"mode"},
	)
)

// ObserveRequest records one upstream API request.
func ObserveRequest(endpoint string, status int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRetry records a retried request by reason
// ("rate_limited", "server_error", "network").
func ObserveRetry(reason string) {
	apiRetriesTotal.WithLabelValues(reason).Inc()
}

// ObserveRateLimitWait records the duration of a pacing or backoff wait.
func ObserveRateLimitWait(duration time.Duration) {
	rateLimitWaitSeconds.Observe(duration.Seconds())
}

// ObservePage records one processed scanner page.
func ObservePage(view string) {
	scanPagesTotal.WithLabelValues(view).Inc()
}

// ObserveScanOutcome records a view scan reaching a terminal state.
func ObserveScanOutcome(view, outcome string) {
	scanOutcomesTotal.WithLabelValues(view, outcome).Inc()
}

// ObserveRows records rows written to the graph for an entity kind.
func ObserveRows(kind string, n int) {
	if n > 0 {
		graphRowsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveStageFailure records an isolated stage failure.
func ObserveStageFailure(stage string) {
	stageFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveRun records a completed crawl run.
func ObserveRun(mode string) {
	runsTotal.WithLabelValues(mode).Inc()
}

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer builds an http.Server exposing /metrics and /healthz on addr.
// The caller owns its lifecycle.
func NewServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			return
		}
	})
	r.Method(http.MethodGet, "/metrics", Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
