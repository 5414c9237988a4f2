package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the readiness probe last succeeded.",
	})
)

// Trust-core domain metrics.
var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by effect and matched source.",
		},
		[]string{"effect", "source"},
	)

	auditQueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_queue_dropped_total",
		Help: "Audit records dropped because the queue was full.",
	})

	sessionCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_cache_hits_total",
		Help: "Session validations served from the cache.",
	})

	sessionCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_cache_misses_total",
		Help: "Session validations that fell through to the store.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		authzDecisions, auditQueueDropped, sessionCacheHits, sessionCacheMisses,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the most recent readiness probe result.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

// ObserveDecision counts one authorization decision.
func ObserveDecision(effect, source string) {
	authzDecisions.WithLabelValues(effect, source).Inc()
}

// ObserveAuditDrop counts one audit record lost to backpressure.
func ObserveAuditDrop() {
	auditQueueDropped.Inc()
}

// ObserveSessionCache counts one cache lookup on the validation path.
func ObserveSessionCache(hit bool) {
	if hit {
		sessionCacheHits.Inc()
	} else {
		sessionCacheMisses.Inc()
	}
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
// pathLabel maps the request path to a bounded label value so that routes
// embedding ids do not mint one series per id; nil keeps the raw path.
func Instrument(next http.Handler, pathLabel func(string) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if pathLabel != nil {
			path = pathLabel(path)
		}
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
