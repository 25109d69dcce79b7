package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the agent.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	syncPassTotal   *prometheus.CounterVec
	syncEntryTotal  *prometheus.CounterVec
	syncDuration    prometheus.Observer
	queueDepth      *prometheus.GaugeVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
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

	syncPassTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_passes_total",
		Help: "Total queue drain passes by result",
	}, []string{"result"})

	syncEntryTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_entries_total",
		Help: "Queue entries processed by outcome",
	}, []string{"outcome"})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_pass_duration_seconds",
		Help:    "Duration of queue drain passes",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_queue_depth",
		Help: "Queue entries by lifecycle state",
	}, []string{"status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, syncPassTotal, syncEntryTotal, syncDuration, queueDepth, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		syncPassTotal:   syncPassTotal,
		syncEntryTotal:  syncEntryTotal,
		syncDuration:    syncDuration,
		queueDepth:      queueDepth,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveSyncPass records one drain pass.
func (m *MetricsService) ObserveSyncPass(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncPassTotal.WithLabelValues(result).Inc()
	m.syncDuration.Observe(duration.Seconds())
}

// CountSyncEntry tallies one processed queue entry by outcome.
func (m *MetricsService) CountSyncEntry(outcome string) {
	if m == nil {
		return
	}
	m.syncEntryTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth reports the current queue composition.
func (m *MetricsService) SetQueueDepth(status string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(status).Set(float64(depth))
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
