// Package middleware provides HTTP middleware functions
package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/internal/logging"
)

// MetricsMiddleware records HTTP metrics for each request. When the request
// was matched by a mux route the route template becomes the path label,
// otherwise the path is collapsed to keep label cardinality bounded.
func MetricsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Increment in-flight requests
			metrics.IncInFlight()
			defer metrics.DecInFlight()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// Process request
			next.ServeHTTP(wrapped, r)

			// Use route pattern if available
			path := metrics.CanonicalPath(r.URL.Path)
			if route := mux.CurrentRoute(r); route != nil {
				if pathTemplate, err := route.GetPathTemplate(); err == nil {
					path = pathTemplate
				}
			}

			metrics.RecordHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start))
		})
	}
}

// LoggingMiddleware is the mux-form adapter for TracingMiddleware: it
// resolves the trace context and logs each request.
func LoggingMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return NewTracingMiddleware(logger).Handler
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
