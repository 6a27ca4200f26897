package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxSheetLabels bounds the distinct sheet label values; later sheets are
// counted under otherSheets.
const (
	maxSheetLabels = 100
	otherSheets    = "other"
)

// Metrics exports HTTP and data-layer measurements to Prometheus. It also
// implements sheetstore.MetricsRecorder.
type Metrics struct {
	registry *prometheus.Registry

	mu     sync.Mutex
	sheets map[string]bool

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	conflicts       *prometheus.CounterVec
	dropped         *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sheets:   make(map[string]bool),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetstore_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sheetstore_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetstore_cache_lookups_total",
			Help: "Read cache lookups by sheet and result.",
		}, []string{"sheet", "result"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetstore_backend_calls_total",
			Help: "Spreadsheet backend calls by operation and result.",
		}, []string{"op", "result"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sheetstore_backend_call_duration_seconds",
			Help:    "Spreadsheet backend latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetstore_write_conflicts_total",
			Help: "Writes rejected because the same cell was already being written.",
		}, []string{"sheet"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetstore_notifications_dropped_total",
			Help: "External update notifications dropped.",
		}, []string{"sheet"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.cacheLookups,
		m.backendCalls, m.backendDuration, m.conflicts, m.dropped,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// sheetLabel admits the first maxSheetLabels sheet names as label values.
func (m *Metrics) sheetLabel(sheet string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sheets[sheet] {
		return sheet
	}
	if len(m.sheets) >= maxSheetLabels {
		return otherSheets
	}
	m.sheets[sheet] = true
	return sheet
}

func (m *Metrics) CacheHit(sheet string) {
	m.cacheLookups.WithLabelValues(m.sheetLabel(sheet), "hit").Inc()
}

func (m *Metrics) CacheMiss(sheet string) {
	m.cacheLookups.WithLabelValues(m.sheetLabel(sheet), "miss").Inc()
}

func (m *Metrics) BackendCall(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backendCalls.WithLabelValues(op, result).Inc()
	m.backendDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) WriteConflict(sheet string) {
	m.conflicts.WithLabelValues(m.sheetLabel(sheet)).Inc()
}

func (m *Metrics) NotificationDropped(sheet string) {
	m.dropped.WithLabelValues(m.sheetLabel(sheet)).Inc()
}
