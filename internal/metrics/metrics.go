// Package metrics provides Shepherd's Prometheus instrumentation. Per
// spec.md §9's note that "global... singletons become explicit
// collaborators constructed at startup," metrics live on a Registry value
// built once in main and passed into the components that need it, rather
// than as package-level globals.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric Shepherd exports.
type Registry struct {
	reg *prometheus.Registry

	JobsEnqueued  *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec

	QueueDepth    *prometheus.GaugeVec
	SheepState    *prometheus.GaugeVec
	SheepRestarts *prometheus.CounterVec

	StorageOpDuration *prometheus.HistogramVec
	StorageRetries    *prometheus.CounterVec

	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
}

// New builds a Registry with all metrics registered on a fresh
// prometheus.Registry (never the global default, keeping this instance
// self-contained and testable).
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_jobs_enqueued_total",
			Help: "Total number of jobs enqueued, by sheep.",
		}, []string{"sheep_id"}),

		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_jobs_completed_total",
			Help: "Total number of jobs reaching a terminal state, by sheep and outcome.",
		}, []string{"sheep_id", "state"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shepherd_job_duration_seconds",
			Help:    "Time from Processing to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15),
		}, []string{"sheep_id", "state"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shepherd_queue_depth",
			Help: "Current number of jobs queued per sheep.",
		}, []string{"sheep_id"}),

		SheepState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shepherd_sheep_state",
			Help: "1 if the sheep is currently in the labeled state, else 0.",
		}, []string{"sheep_id", "state"}),

		SheepRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_sheep_restarts_total",
			Help: "Total number of crash-triggered sheep restarts.",
		}, []string{"sheep_id"}),

		StorageOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shepherd_storage_op_duration_seconds",
			Help:    "Duration of object store get/put operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),

		StorageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_storage_retries_total",
			Help: "Total number of retried storage operation attempts.",
		}, []string{"op"}),

		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_api_requests_total",
			Help: "Total number of API requests.",
		}, []string{"method", "route", "status_code"}),

		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shepherd_api_request_duration_seconds",
			Help:    "API request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler returns the HTTP handler serving this Registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SetSheepState records sheep's current state, clearing every other known
// state label for the same sheep so stale gauges don't linger at 1.
func (r *Registry) SetSheepState(sheepID string, states []string, current string) {
	for _, state := range states {
		value := 0.0
		if state == current {
			value = 1.0
		}
		r.SheepState.WithLabelValues(sheepID, state).Set(value)
	}
}
