package httpapi

import (
	"net/http"

	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/httputil"
)

// getGoal returns the user's daily targets, falling back to the defaults for
// users who never set any.
func (h *handler) getGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	g, err := h.app.Goals.Get(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGoalDTO(g))
}

func (h *handler) setGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Calories float64 `json:"calories"`
		ProteinG float64 `json:"protein_g"`
		CarbsG   float64 `json:"carbs_g"`
		FatG     float64 `json:"fat_g"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}

	saved, err := h.app.Goals.Set(r.Context(), goal.Goal{
		UserID:   userID,
		Calories: payload.Calories,
		ProteinG: payload.ProteinG,
		CarbsG:   payload.CarbsG,
		FatG:     payload.FatG,
	})
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	h.recordAudit(r, userID, "goal.set", "")
	httputil.WriteJSON(w, http.StatusOK, toGoalDTO(saved))
}

func (h *handler) goalProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	day, err := queryDate(r, "date")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date, expected YYYY-MM-DD")
		return
	}

	progress, err := h.app.Goals.Progress(r.Context(), userID, day)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProgressDTO(progress))
}
