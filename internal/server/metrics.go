// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// ingestRequestsTotal counts completed document ingestions, partitioned by
	// outcome: "ok", "extraction", "embedding", "store_unavailable", or "error".
	ingestRequestsTotal *prometheus.CounterVec

	// ingestDurationSeconds records the wall-clock duration of successful
	// ingestions from upload receipt to vector store upsert.
	ingestDurationSeconds prometheus.Histogram

	// retrievalRequestsTotal counts completed /api/context requests,
	// partitioned by outcome.
	retrievalRequestsTotal *prometheus.CounterVec

	// retrievalDurationSeconds records the latency of successful retrievals.
	retrievalDurationSeconds prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		ingestRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Total number of document ingestions completed, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contextd",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of successful document ingestions.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),

		retrievalRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of context retrievals completed, partitioned by outcome.",
		}, []string{"outcome"}),

		retrievalDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contextd",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Latency of successful context retrievals.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contextd",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
