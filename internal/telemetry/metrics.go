// Package telemetry provides observability primitives for the Celeste gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	BackendDuration  *prometheus.HistogramVec
	BackendErrors    *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	Invalidations    *prometheus.CounterVec
	SnapshotWrites   *prometheus.CounterVec
	RateLimitRejects prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celeste",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "celeste",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "celeste",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "celeste",
			Name:                            "backend_duration_seconds",
			Help:                            "Backend API call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "endpoint"}),

		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celeste",
			Name:      "backend_errors_total",
			Help:      "Total failed backend API calls.",
		}, []string{"endpoint", "status"}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celeste",
			Name:      "cache_hits_total",
			Help:      "Total query cache hits.",
		}, []string{"endpoint"}),

		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celeste",
			Name:      "cache_misses_total",
			Help:      "Total query cache misses.",
		}, []string{"endpoint"}),

		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "celeste",
			Name:      "cache_entries",
			Help:      "Approximate number of entries in the query cache.",
		}),

		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celeste",
			Name:      "cache_invalidated_entries_total",
			Help:      "Total cache entries removed by explicit invalidation.",
		}, []string{"scope"}),

		SnapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celeste",
			Name:      "cache_snapshot_writes_total",
			Help:      "Total cache snapshot writes by result.",
		}, []string{"result"}),

		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "celeste",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.BackendDuration,
		m.BackendErrors,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEntries,
		m.Invalidations,
		m.SnapshotWrites,
		m.RateLimitRejects,
	)

	return m
}

// SnapshotWritten implements querycache.Observer.
func (m *Metrics) SnapshotWritten(err error) {
	if err != nil {
		m.SnapshotWrites.WithLabelValues("error").Inc()
		return
	}
	m.SnapshotWrites.WithLabelValues("ok").Inc()
}

// EntriesChanged implements querycache.Observer.
func (m *Metrics) EntriesChanged(n int) {
	m.CacheEntries.Set(float64(n))
}
