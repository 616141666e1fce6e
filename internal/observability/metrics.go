package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsManager owns a private Prometheus registry with the gateway metrics.
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry

	uptime         prometheus.GaugeFunc
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	sessionsActive prometheus.Gauge
	sessionsOpened prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	claims         *prometheus.CounterVec
	callbacks      *prometheus.CounterVec
	gateDenials    *prometheus.CounterVec
	pending        prometheus.Gauge
	toolCalls      *prometheus.CounterVec
	upstreamCalls  *prometheus.CounterVec
	upstreamTime   *prometheus.HistogramVec
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	mm := &MetricsManager{
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	mm.initMetrics(time.Now())
	mm.registerMetrics()
	return mm
}

func (mm *MetricsManager) initMetrics(start time.Time) {
	mm.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "devbridge_uptime_seconds",
		Help: "Time since the gateway started",
	}, func() float64 { return time.Since(start).Seconds() })

	mm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devbridge_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	mm.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devbridge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	mm.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "devbridge_sessions_active",
		Help: "Number of live MCP sessions",
	})

	mm.sessionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devbridge_sessions_opened_total",
		Help: "Sessions created by initialize requests",
	})

	mm.sessionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devbridge_sessions_closed_total",
		Help: "Sessions closed, by reason",
	}, []string{"reason"})

	mm.claims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devbridge_claims_total",
		Help: "Pending credential claims, by result",
	}, []string{"result"})

	mm.callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devbridge_oauth_callbacks_total",
		Help: "OAuth callbacks and device completions, by provider and result",
	}, []string{"provider", "result"})

	mm.gateDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devbridge_gate_denials_total",
		Help: "Tool calls answered with authentication pending",
	}, []string{"requirement"})

	mm.pending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "devbridge_pending_entries",
		Help: "Unclaimed pending credential entries",
	})

	mm.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devbridge_tool_calls_total",
		Help: "Tool invocations that passed the gate",
	}, []string{"tool", "status"})

	mm.upstreamCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devbridge_upstream_requests_total",
		Help: "Outbound REST calls, by provider and status class",
	}, []string{"provider", "status"})

	mm.upstreamTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devbridge_upstream_request_duration_seconds",
		Help:    "Outbound REST call duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})
}

func (mm *MetricsManager) registerMetrics() {
	mm.registry.MustRegister(
		mm.uptime,
		mm.httpRequests,
		mm.httpDuration,
		mm.sessionsActive,
		mm.sessionsOpened,
		mm.sessionsClosed,
		mm.claims,
		mm.callbacks,
		mm.gateDenials,
		mm.pending,
		mm.toolCalls,
		mm.upstreamCalls,
		mm.upstreamTime,
	)
	mm.registry.MustRegister(collectors.NewGoCollector())
	mm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler for the /metrics endpoint
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry for custom metrics
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

func (mm *MetricsManager) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if mm == nil {
		return
	}
	mm.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	mm.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (mm *MetricsManager) SessionOpened() {
	if mm == nil {
		return
	}
	mm.sessionsOpened.Inc()
	mm.sessionsActive.Inc()
}

func (mm *MetricsManager) SessionClosed(reason string) {
	if mm == nil {
		return
	}
	mm.sessionsClosed.WithLabelValues(reason).Inc()
	mm.sessionsActive.Dec()
}

func (mm *MetricsManager) RecordClaim(result string) {
	if mm == nil {
		return
	}
	mm.claims.WithLabelValues(result).Inc()
}

func (mm *MetricsManager) RecordOAuthCallback(provider, result string) {
	if mm == nil {
		return
	}
	mm.callbacks.WithLabelValues(provider, result).Inc()
}

func (mm *MetricsManager) RecordGateDenial(requirement string) {
	if mm == nil {
		return
	}
	mm.gateDenials.WithLabelValues(requirement).Inc()
}

func (mm *MetricsManager) SetPendingEntries(n int) {
	if mm == nil {
		return
	}
	mm.pending.Set(float64(n))
}

func (mm *MetricsManager) RecordToolCall(tool, status string) {
	if mm == nil {
		return
	}
	mm.toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordUpstream records one outbound call. status is an HTTP code, or 0
// when no response was received.
func (mm *MetricsManager) RecordUpstream(provider string, status int, d time.Duration) {
	if mm == nil {
		return
	}
	label := "none"
	if status > 0 {
		label = statusClass(status)
	}
	mm.upstreamCalls.WithLabelValues(provider, label).Inc()
	mm.upstreamTime.WithLabelValues(provider).Observe(d.Seconds())
}

func statusClass(code int) string {
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

// HTTPMiddleware returns middleware that records HTTP metrics
func (mm *MetricsManager) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if ww.statusCode == http.StatusNotFound {
				// Keep label cardinality bounded for scanners.
				path = "unmatched"
			}
			mm.RecordHTTPRequest(r.Method, path, ww.statusCode, time.Since(start))
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code. It
// forwards Flush so server-sent event streams keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
