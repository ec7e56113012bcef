package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "proteinlens",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proteinlens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proteinlens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	captureEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proteinlens",
			Subsystem: "capture",
			Name:      "events_total",
			Help:      "Total number of capture events dispatched to sessions.",
		},
		[]string{"kind", "applied"},
	)

	captureDroppedTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proteinlens",
			Subsystem: "capture",
			Name:      "dropped_terminal_events_total",
			Help:      "Terminal collaborator callbacks that arrived for a phase that no longer accepts them.",
		},
		[]string{"kind", "phase"},
	)

	captureSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "proteinlens",
			Subsystem: "capture",
			Name:      "active_sessions",
			Help:      "Capture sessions currently held in the registry.",
		},
	)

	uploadRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proteinlens",
			Subsystem: "upload",
			Name:      "runs_total",
			Help:      "Total number of upload attempts.",
		},
		[]string{"status"},
	)

	uploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proteinlens",
			Subsystem: "upload",
			Name:      "run_duration_seconds",
			Help:      "Duration of upload attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"status"},
	)

	analysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proteinlens",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of vision analysis attempts.",
		},
		[]string{"status"},
	)

	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proteinlens",
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "Duration of vision analysis attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"status"},
	)

	scoreEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proteinlens",
			Subsystem: "profiles",
			Name:      "score_evaluations_total",
			Help:      "Total number of profile score evaluations.",
		},
		[]string{"outcome"},
	)

	breachChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proteinlens",
			Subsystem: "breach",
			Name:      "checks_total",
			Help:      "Total number of password hygiene range queries.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		captureEvents,
		captureDroppedTerminal,
		captureSessions,
		uploadRuns,
		uploadDuration,
		analysisRuns,
		analysisDuration,
		scoreEvaluations,
		breachChecks,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		IncInFlight()
		defer DecInFlight()

		next.ServeHTTP(rec, r)

		RecordHTTPRequest(r.Method, CanonicalPath(r.URL.Path), rec.status, time.Since(start))
	})
}

// IncInFlight increments the in-flight request gauge. Middlewares that manage
// their own response recorder call this pair directly.
func IncInFlight() {
	httpInFlight.Inc()
}

// DecInFlight decrements the in-flight request gauge.
func DecInFlight() {
	httpInFlight.Dec()
}

// RecordHTTPRequest records one handled request under the given path label.
// Callers are responsible for keeping the path label low-cardinality, either
// via a router template or CanonicalPath.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m := strings.ToUpper(method)
	httpRequests.WithLabelValues(m, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(m, path).Observe(duration.Seconds())
}

// RecordCaptureEvent counts one event dispatched to a session.
func RecordCaptureEvent(kind string, applied bool) {
	captureEvents.WithLabelValues(kind, strconv.FormatBool(applied)).Inc()
}

// RecordDroppedTerminalEvent counts a terminal callback that found the session
// in a phase that no longer accepts it.
func RecordDroppedTerminalEvent(kind, phase string) {
	captureDroppedTerminal.WithLabelValues(kind, phase).Inc()
}

// SetActiveSessions publishes the registry size.
func SetActiveSessions(n int) {
	captureSessions.Set(float64(n))
}

// RecordUpload records one upload attempt.
func RecordUpload(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	uploadRuns.WithLabelValues(status).Inc()
	uploadDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAnalysisRun records one vision analysis attempt.
func RecordAnalysisRun(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	analysisRuns.WithLabelValues(status).Inc()
	analysisDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordScoreEvaluation records one profile scoring run.
func RecordScoreEvaluation(outcome string) {
	scoreEvaluations.WithLabelValues(outcome).Inc()
}

// RecordBreachCheck records one range query outcome.
func RecordBreachCheck(outcome string) {
	breachChecks.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// CanonicalPath collapses identifiers so metric label cardinality stays
// bounded. Fixed subresources keep their own label.
func CanonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/v1"
	}
	resource := parts[1]
	if len(parts) == 2 {
		return "/v1/" + resource
	}

	fixed := map[string]bool{
		"summary":   true,
		"progress":  true,
		"selection": true,
		"check":     true,
	}
	if fixed[parts[2]] {
		return "/v1/" + resource + "/" + parts[2]
	}
	if len(parts) == 3 {
		return "/v1/" + resource + "/:id"
	}
	return "/v1/" + resource + "/:id/" + parts[3]
}
