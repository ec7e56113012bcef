// Package middleware provides HTTP middleware for the API server
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/proteinlens/proteinlens/internal/logging"
	"github.com/proteinlens/proteinlens/internal/trace"
)

// LegacyTraceHeader is accepted from clients that predate traceparent.
const LegacyTraceHeader = "X-Trace-ID"

// TracingMiddleware attaches a trace context to every request
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// Handler returns the tracing middleware handler. It parses an incoming
// traceparent header, falls back to the legacy X-Trace-ID header, and
// generates a fresh context when neither is usable. The request always
// proceeds under its own span of the resulting trace.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := incomingTrace(r)

		// Expose both header forms so old and new clients can correlate
		ctx := trace.NewContext(r.Context(), tc)
		ctx = logging.WithTraceID(ctx, tc.TraceID)
		w.Header().Set(trace.Header, tc.String())
		w.Header().Set(LegacyTraceHeader, tc.TraceID)

		// Create response writer wrapper to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Record start time
		start := time.Now()

		// Process request
		next.ServeHTTP(rw, r.WithContext(ctx))

		// Log request
		duration := time.Since(start)
		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// incomingTrace resolves the trace context for a request. Malformed headers
// are ignored rather than rejected.
func incomingTrace(r *http.Request) trace.Context {
	if header := r.Header.Get(trace.Header); header != "" {
		if parent, err := trace.Parse(header); err == nil {
			return parent.Child()
		}
	}
	if id, ok := legacyTraceID(r.Header.Get(LegacyTraceHeader)); ok {
		tc := trace.New()
		tc.TraceID = id
		return tc
	}
	return trace.New()
}

// legacyTraceID normalizes an X-Trace-ID value into a W3C trace ID: 32 hex
// characters, dashes tolerated for UUID-shaped values, all-zero rejected.
func legacyTraceID(header string) (string, bool) {
	id := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(header), "-", ""))
	if len(id) != 32 {
		return "", false
	}
	zero := true
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", false
		}
		if c != '0' {
			zero = false
		}
	}
	if zero {
		return "", false
	}
	return id, true
}
