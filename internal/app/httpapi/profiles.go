package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/proteinlens/proteinlens/internal/app/services/profiles"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/internal/httputil"
)

func (h *handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}

	catalog := h.app.Profiles.List()
	dtos := make([]profileDTO, 0, len(catalog))
	for _, p := range catalog {
		dtos = append(dtos, toProfileDTO(p))
	}
	httputil.WriteJSON(w, http.StatusOK, dtos)
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}

	p, err := h.app.Profiles.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileDTO(p))
}

func (h *handler) getProfileSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	sel, err := h.app.Profiles.GetUserProfile(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSelectionDTO(sel))
}

func (h *handler) setProfileSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProfileID string `json:"profile_id"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.ProfileID == "" {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "profile_id required")
		return
	}

	sel, err := h.app.Profiles.SetUserProfile(r.Context(), userID, payload.ProfileID)
	if err != nil {
		// An unknown catalog id in the body is a validation problem, not a
		// missing route target.
		if errors.Is(err, profiles.ErrUnknownProfile) {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		h.respondServiceError(w, r, err)
		return
	}
	h.recordAudit(r, userID, "profile.select", payload.ProfileID)
	httputil.WriteJSON(w, http.StatusOK, toSelectionDTO(sel))
}

// clearProfileSelection is idempotent; clearing an absent selection succeeds.
func (h *handler) clearProfileSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	if err := h.app.Profiles.ClearUserProfile(r.Context(), userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.respondServiceError(w, r, err)
		return
	}
	h.recordAudit(r, userID, "profile.clear", "")
	w.WriteHeader(http.StatusNoContent)
}

// scoreAnalysis grades a nutrition analysis against a profile's scorer.
func (h *handler) scoreAnalysis(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}
	var payload analysisDTO
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	profileID := mux.Vars(r)["id"]

	analysis := fromAnalysisDTO(payload)
	result, err := h.app.Profiles.Score(r.Context(), profileID, &analysis)
	if err != nil {
		if errors.Is(err, profiles.ErrUnknownProfile) {
			h.respondServiceError(w, r, err)
			return
		}
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toScoreDTO(result))
}
