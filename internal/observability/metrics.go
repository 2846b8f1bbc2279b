package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progressledger_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "progressledger_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "progressledger_http_inflight_requests",
		Help: "HTTP requests currently being served",
	})

	notificationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progressledger_notifications_processed_total",
		Help: "Notifications run through the ledger writer by type and result",
	}, []string{"type", "result"})

	attributionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progressledger_attribution_decisions_total",
		Help: "Attribution workflow transitions by source and outcome",
	}, []string{"source", "outcome"})

	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "progressledger_query_duration_seconds",
		Help:    "As-of query latency",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"query"})

	jobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progressledger_jobs_total",
		Help: "Job status transitions by job type",
	}, []string{"job_type", "status"})

	leasesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progressledger_job_leases_reaped_total",
		Help: "Job leases released because they expired",
	})

	classifierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progressledger_classifier_requests_total",
		Help: "Classifier calls by provider and result",
	}, []string{"provider", "result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTP(method, route, status string, dur time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func HTTPInflightInc() { httpInflight.Inc() }
func HTTPInflightDec() { httpInflight.Dec() }

func ObserveProcessed(notificationType, result string) {
	if notificationType == "" {
		notificationType = "untyped"
	}
	notificationsProcessed.WithLabelValues(notificationType, result).Inc()
}

func ObserveAttribution(source, outcome string) {
	attributionDecisions.WithLabelValues(source, outcome).Inc()
}

func ObserveQuery(query string, dur time.Duration) {
	queryLatency.WithLabelValues(query).Observe(dur.Seconds())
}

func ObserveJob(jobType, status string) {
	jobTransitions.WithLabelValues(jobType, status).Inc()
}

func ObserveLeasesReaped(n int64) {
	if n > 0 {
		leasesReaped.Add(float64(n))
	}
}

func ObserveClassifier(provider, result string) {
	classifierRequests.WithLabelValues(provider, result).Inc()
}
