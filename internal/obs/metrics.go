package obs

import (
	"net/http"
	"strconv"
	"strings"
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

// Domain counters for the triage pipeline.
var (
	IssuesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "issues_submitted_total",
		Help: "Issues accepted by the triage pipeline.",
	})
	MissionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "missions_completed_total",
		Help: "Mission completions that credited a reporter.",
	})
	CreditsAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credits_awarded_total",
		Help: "Total credits granted through completions and resolutions.",
	})
	GeocodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geocode_failures_total",
		Help: "Reverse geocode attempts degraded to an empty result.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		IssuesSubmitted, MissionsCompleted, CreditsAwarded, GeocodeFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the last readiness probe result.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// CanonicalPath collapses resource identifiers so metric cardinality stays
// bounded: /v1/issues/<id>/missions becomes /v1/issues/:id/missions.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}

	parts := strings.Split(path, "/")
	// Recognised shapes: /v1/<collection>/<id>[/<verb>]
	if len(parts) >= 4 && parts[1] == "v1" {
		switch parts[2] {
		case "issues", "missions", "users":
			if parts[3] != "" {
				parts[3] = ":id"
			}
			if len(parts) > 5 {
				return path
			}
			return strings.Join(parts, "/")
		}
	}
	return path
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
