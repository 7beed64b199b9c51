// Package metrics holds the Prometheus collectors shared by the API and the worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "petichat"

var (
	aiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_requests_total",
		Help:      "AI provider calls by provider, operation and outcome",
	}, []string{"provider", "operation", "outcome"})

	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ai_request_duration_seconds",
		Help:      "AI provider call latency",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
	}, []string{"provider", "operation"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Background job attempts by kind and outcome (completed, retried, failed)",
	}, []string{"kind", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Background job attempt duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})

	jobsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "Jobs currently executing per kind",
	}, []string{"kind"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	inlineActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inline_actions_total",
		Help:      "Inline edit actions by kind and transition (requested, applied, discarded, stale)",
	}, []string{"kind", "transition"})

	chunksEmbedded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jurisprudence_chunks_embedded_total",
		Help:      "Jurisprudence chunk embeddings by outcome",
	}, []string{"outcome"})

	documentVersions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_versions_total",
		Help:      "Document version snapshots written",
	})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAI records one provider call started at start
func ObserveAI(provider, operation string, start time.Time, err error) {
	aiRequests.WithLabelValues(provider, operation, outcome(err)).Inc()
	aiDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// JobStarted marks a job of kind as executing and returns a func to call when it ends
func JobStarted(kind string) func(outcome string) {
	start := time.Now()
	jobsActive.WithLabelValues(kind).Inc()
	return func(outcome string) {
		jobsActive.WithLabelValues(kind).Dec()
		jobsProcessed.WithLabelValues(kind, outcome).Inc()
		jobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

// ObserveHTTP records a served request
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// InlineAction counts an edit-action transition
func InlineAction(kind, transition string) {
	inlineActions.WithLabelValues(kind, transition).Inc()
}

// VersionSnapshotted counts a document version write
func VersionSnapshotted() {
	documentVersions.Inc()
}

// ChunkEmbedded counts one chunk embedding attempt
func ChunkEmbedded(ok bool) {
	if ok {
		chunksEmbedded.WithLabelValues("ok").Inc()
		return
	}
	chunksEmbedded.WithLabelValues("error").Inc()
}

// Handler exposes the default registry for scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
