// Package httpapi exposes the REST and websocket API consumed by the mobile
// and web clients. Handlers authenticate through the user ID the middleware
// stored in the request context; the router itself carries no middleware so
// the runtime can compose the chain.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	app "github.com/proteinlens/proteinlens/internal/app"
	"github.com/proteinlens/proteinlens/internal/app/services/breach"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/app/services/meals"
	"github.com/proteinlens/proteinlens/internal/app/services/profiles"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/internal/httputil"
	"github.com/proteinlens/proteinlens/internal/logging"
)

// DefaultMaxUploadBytes caps multipart image uploads when the config leaves
// the limit unset. Matches the largest file the capture service accepts.
const DefaultMaxUploadBytes = 8 << 20

// Config tunes the public API handler.
type Config struct {
	// MaxUploadBytes caps the image accepted by the session file endpoint.
	// Zero selects DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// AuditPath mirrors the in-memory activity trail to a JSONL file.
	// Empty keeps the trail in memory only.
	AuditPath string
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app            *app.Application
	log            *logging.Logger
	audit          *auditLog
	maxUploadBytes int64
	upgrader       websocket.Upgrader
}

// NewHandler returns the router exposing the /v1 REST API.
func NewHandler(application *app.Application, cfg Config, log *logging.Logger) (http.Handler, error) {
	if log == nil {
		log = logging.New("httpapi", "info", "json")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	sink, err := newFileAuditSink(cfg.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	h := &handler{
		app:            application,
		log:            log,
		audit:          newAuditLog(0, sink),
		maxUploadBytes: maxUpload,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Credentials arrive as bearer tokens checked before the
			// upgrade; no cookies are in play.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFoundRoute)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	v1.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", h.getSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", h.deleteSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{id}/file", h.selectFile).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/upload", h.startUpload).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/retry", h.retrySession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/reset", h.resetSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/events", h.sessionEvents).Methods(http.MethodGet)

	v1.HandleFunc("/meals", h.createMeal).Methods(http.MethodPost)
	v1.HandleFunc("/meals", h.listMeals).Methods(http.MethodGet)
	v1.HandleFunc("/meals/from-session", h.logMealFromSession).Methods(http.MethodPost)
	v1.HandleFunc("/meals/{id}", h.getMeal).Methods(http.MethodGet)
	v1.HandleFunc("/meals/{id}", h.updateMeal).Methods(http.MethodPut)
	v1.HandleFunc("/meals/{id}", h.deleteMeal).Methods(http.MethodDelete)
	v1.HandleFunc("/summary/daily", h.dailySummary).Methods(http.MethodGet)

	v1.HandleFunc("/goals", h.getGoal).Methods(http.MethodGet)
	v1.HandleFunc("/goals", h.setGoal).Methods(http.MethodPut)
	v1.HandleFunc("/goals/progress", h.goalProgress).Methods(http.MethodGet)

	v1.HandleFunc("/profiles", h.listProfiles).Methods(http.MethodGet)
	// Fixed paths before the {id} routes; mux matches in registration order.
	v1.HandleFunc("/profiles/selection", h.getProfileSelection).Methods(http.MethodGet)
	v1.HandleFunc("/profiles/selection", h.setProfileSelection).Methods(http.MethodPut)
	v1.HandleFunc("/profiles/selection", h.clearProfileSelection).Methods(http.MethodDelete)
	v1.HandleFunc("/profiles/{id}", h.getProfile).Methods(http.MethodGet)
	v1.HandleFunc("/profiles/{id}/score", h.scoreAnalysis).Methods(http.MethodPost)

	v1.HandleFunc("/password/check", h.checkPassword).Methods(http.MethodPost)
	v1.HandleFunc("/activity", h.listActivity).Methods(http.MethodGet)

	return r, nil
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkPassword proxies the k-anonymity breach lookup. Unauthenticated so
// clients can vet passwords during signup.
func (h *handler) checkPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Password string `json:"password"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.Password == "" {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "password required")
		return
	}
	if h.app.Breach == nil {
		respondError(w, r, http.StatusNotImplemented, "NOT_CONFIGURED", "Password breach checking is not configured")
		return
	}

	count, err := h.app.Breach.Check(r.Context(), payload.Password)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		Breached bool `json:"breached"`
		Count    int  `json:"count"`
	}{Breached: count > 0, Count: count})
}

// respondServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognized is logged and reported as a 500 without leaking the cause.
func (h *handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, capture.ErrSessionNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, profiles.ErrUnknownProfile):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, capture.ErrSessionLimit):
		respondError(w, r, http.StatusTooManyRequests, "SESSION_LIMIT", err.Error())
	case errors.Is(err, meals.ErrSessionNotReady):
		respondError(w, r, http.StatusConflict, "SESSION_NOT_READY", err.Error())
	case errors.Is(err, breach.ErrUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", err.Error())
	default:
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httputil.WriteErrorResponse(w, r, status, code, message, nil)
}

func notFoundRoute(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}
