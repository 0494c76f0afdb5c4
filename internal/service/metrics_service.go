package service

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the progress cache
// and the warning ladder.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	progressCompute     prometheus.Observer
	warningsIssued      *prometheus.CounterVec
	warningsCancelled   prometheus.Counter
	escalationConflicts prometheus.Counter
	auditFailures       prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	progressCompute := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "progress_compute_seconds",
		Help:    "Time spent recomputing a learner progress grid",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	})

	warningsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warnings_issued_total",
		Help: "Warnings issued, by ladder level",
	}, []string{"level"})

	warningsCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warnings_cancelled_total",
		Help: "Warnings cancelled",
	})

	escalationConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escalation_conflicts_total",
		Help: "Warning writes rejected because a concurrent writer won",
	})

	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_failures_total",
		Help: "Audit writes that failed after the primary change committed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		progressCompute, warningsIssued, warningsCancelled, escalationConflicts, auditFailures,
		goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheWrite:          cacheWrite,
		cacheHitRatio:       cacheHitRatio,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		progressCompute:     progressCompute,
		warningsIssued:      warningsIssued,
		warningsCancelled:   warningsCancelled,
		escalationConflicts: escalationConflicts,
		auditFailures:       auditFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveProgressCompute records the time spent building one progress grid.
func (m *MetricsService) ObserveProgressCompute(duration time.Duration) {
	if m == nil {
		return
	}
	m.progressCompute.Observe(duration.Seconds())
}

// WarningIssued counts a newly written warning.
func (m *MetricsService) WarningIssued(level int) {
	if m == nil {
		return
	}
	m.warningsIssued.WithLabelValues(strconv.Itoa(level)).Inc()
}

// WarningCancelled counts a cancellation that changed state.
func (m *MetricsService) WarningCancelled() {
	if m == nil {
		return
	}
	m.warningsCancelled.Inc()
}

// EscalationConflict counts a lost concurrent write.
func (m *MetricsService) EscalationConflict() {
	if m == nil {
		return
	}
	m.escalationConflicts.Inc()
}

// AuditFailure counts an audit write that did not land.
func (m *MetricsService) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}
