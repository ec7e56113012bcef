package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/proteinlens/proteinlens/internal/logging"
)

// MaxRequestBody caps JSON request bodies.
const MaxRequestBody = 1 << 20

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error   errorBody `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON serializes v with the given status. Encoding failures are
// swallowed; the status line has already been sent.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteErrorResponse emits the canonical error envelope, attaching the trace
// ID from the request context when present.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	envelope := errorEnvelope{
		Error: errorBody{Code: code, Message: message, Details: details},
	}
	if r != nil {
		envelope.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, envelope)
}

// BadRequest writes a 400 with the validation code.
func BadRequest(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Bad request"
	}
	WriteErrorResponse(w, nil, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Access denied"
	}
	WriteErrorResponse(w, nil, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Not found"
	}
	WriteErrorResponse(w, nil, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// Conflict writes a 409.
func Conflict(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Conflict"
	}
	WriteErrorResponse(w, nil, http.StatusConflict, "CONFLICT", message, nil)
}

// InternalError writes a 500 without leaking the cause.
func InternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Internal server error"
	}
	WriteErrorResponse(w, nil, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// DecodeJSON parses the request body into dst, rejecting unknown fields and
// oversized bodies. On failure it writes the 400 itself and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteErrorResponse(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

// RequireUserID reads the authenticated user from the request context. On
// absence it writes the 401 itself and returns ok=false.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		Unauthorized(w, "")
		return "", false
	}
	return userID, true
}
