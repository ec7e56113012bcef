package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/httputil"
)

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	snap, err := h.app.Sessions.Create(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.recordAudit(r, userID, "session.create", snap.Session.ID)
	httputil.WriteJSON(w, http.StatusCreated, toSessionResponse(snap))
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	snap, err := h.app.Sessions.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	sessionID := mux.Vars(r)["id"]

	if err := h.app.Sessions.Remove(r.Context(), userID, sessionID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.recordAudit(r, userID, "session.delete", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// selectFile accepts the meal photo as a multipart "file" part and applies
// the selection to the session.
func (h *handler) selectFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	sessionID := mux.Vars(r)["id"]

	// Image cap plus headroom for the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid multipart body: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Missing file part")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, h.maxUploadBytes+1))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Unreadable file part")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		respondError(w, r, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File exceeds the %d byte limit", h.maxUploadBytes))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	payload := session.NewFilePayload(header.Filename, mimeType, data)

	snap, applied, err := h.app.Sessions.SelectFile(r.Context(), userID, sessionID, *payload)
	if err != nil {
		if errors.Is(err, capture.ErrSessionNotFound) {
			h.respondServiceError(w, r, err)
			return
		}
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	h.recordAudit(r, userID, "session.select_file", sessionID)
	httputil.WriteJSON(w, http.StatusOK, sessionEventResponse{Applied: applied, Session: toSessionResponse(snap)})
}

func (h *handler) startUpload(w http.ResponseWriter, r *http.Request) {
	h.applySessionEvent(w, r, "session.upload", h.app.Sessions.StartUpload)
}

func (h *handler) retrySession(w http.ResponseWriter, r *http.Request) {
	h.applySessionEvent(w, r, "session.retry", h.app.Sessions.Retry)
}

func (h *handler) resetSession(w http.ResponseWriter, r *http.Request) {
	h.applySessionEvent(w, r, "session.reset", h.app.Sessions.Reset)
}

// applySessionEvent runs one capture event and reports the outcome. Events
// that do not apply in the current phase return applied false with a 200; the
// state machine treats them as no-ops, not failures.
func (h *handler) applySessionEvent(w http.ResponseWriter, r *http.Request, action string,
	apply func(ctx context.Context, userID, sessionID string) (capture.Snapshot, bool, error)) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	sessionID := mux.Vars(r)["id"]

	snap, applied, err := apply(r.Context(), userID, sessionID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.recordAudit(r, userID, action, sessionID)
	httputil.WriteJSON(w, http.StatusOK, sessionEventResponse{Applied: applied, Session: toSessionResponse(snap)})
}
