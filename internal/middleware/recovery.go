package middleware

import (
	"net/http"
	"runtime/debug"

	internalhttputil "github.com/proteinlens/proteinlens/internal/httputil"
	"github.com/proteinlens/proteinlens/internal/logging"
)

// RecoveryMiddleware converts handler panics into 500 responses
type RecoveryMiddleware struct {
	logger *logging.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware
func NewRecoveryMiddleware(logger *logging.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger,
	}
}

// Handler returns the recovery middleware handler. A panicking handler gets
// logged with its stack and the client receives the standard error envelope.
// http.ErrAbortHandler passes through so aborted streams keep their contract.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			m.logger.WithContext(r.Context()).
				WithFields(map[string]interface{}{
					"panic":  rec,
					"method": r.Method,
					"path":   r.URL.Path,
					"stack":  string(debug.Stack()),
				}).
				Error("panic recovered in handler")

			internalhttputil.WriteErrorResponse(w, r, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Internal server error", nil)
		}()

		next.ServeHTTP(w, r)
	})
}
