package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/app/services/meals"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/internal/httputil"
)

// mealPayload is the request body for creating and updating meals.
type mealPayload struct {
	Description string        `json:"description"`
	Calories    float64       `json:"calories"`
	ProteinG    float64       `json:"protein_g"`
	CarbsG      float64       `json:"carbs_g"`
	FatG        float64       `json:"fat_g"`
	FiberG      float64       `json:"fiber_g"`
	Items       []foodItemDTO `json:"items"`
	LoggedAt    time.Time     `json:"logged_at"`
}

func (p mealPayload) toMeal(userID, id string) meal.Meal {
	return meal.Meal{
		ID:          id,
		UserID:      userID,
		Description: p.Description,
		Calories:    p.Calories,
		ProteinG:    p.ProteinG,
		CarbsG:      p.CarbsG,
		FatG:        p.FatG,
		FiberG:      p.FiberG,
		Items:       fromFoodItemDTOs(p.Items),
		LoggedAt:    p.LoggedAt,
	}
}

func (h *handler) createMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload mealPayload
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}

	created, err := h.app.Meals.Create(r.Context(), payload.toMeal(userID, ""))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	h.recordAudit(r, userID, "meal.create", created.ID)
	httputil.WriteJSON(w, http.StatusCreated, toMealDTO(created))
}

// logMealFromSession turns a finished capture session into a meal and resets
// the session for the next photo.
func (h *handler) logMealFromSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		SessionID   string    `json:"session_id"`
		Description string    `json:"description"`
		LoggedAt    time.Time `json:"logged_at"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.SessionID == "" {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "session_id required")
		return
	}

	created, err := h.app.Meals.LogFromSession(r.Context(), userID, payload.SessionID, payload.Description, payload.LoggedAt)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrSessionNotFound), errors.Is(err, meals.ErrSessionNotReady):
			h.respondServiceError(w, r, err)
		default:
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		}
		return
	}
	h.recordAudit(r, userID, "meal.log_from_session", created.ID)
	httputil.WriteJSON(w, http.StatusCreated, toMealDTO(created))
}

func (h *handler) listMeals(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var from, to time.Time
	if v := q.Get("from"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid from parameter")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid to parameter")
			return
		}
		to = t
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid limit parameter")
			return
		}
		limit = n
	}

	list, err := h.app.Meals.List(r.Context(), userID, from, to, limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	dtos := make([]mealDTO, 0, len(list))
	for _, m := range list {
		dtos = append(dtos, toMealDTO(m))
	}
	httputil.WriteJSON(w, http.StatusOK, dtos)
}

func (h *handler) getMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	m, err := h.app.Meals.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMealDTO(m))
}

func (h *handler) updateMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload mealPayload
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	mealID := mux.Vars(r)["id"]

	updated, err := h.app.Meals.Update(r.Context(), payload.toMeal(userID, mealID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondServiceError(w, r, err)
			return
		}
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	h.recordAudit(r, userID, "meal.update", mealID)
	httputil.WriteJSON(w, http.StatusOK, toMealDTO(updated))
}

func (h *handler) deleteMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	mealID := mux.Vars(r)["id"]

	if err := h.app.Meals.Delete(r.Context(), userID, mealID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.recordAudit(r, userID, "meal.delete", mealID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	day, err := queryDate(r, "date")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date, expected YYYY-MM-DD")
		return
	}

	summary, err := h.app.Meals.DailySummary(r.Context(), userID, day)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// parseTimeParam accepts RFC 3339 instants and bare dates.
func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// queryDate reads a YYYY-MM-DD query parameter, defaulting to today (UTC).
func queryDate(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}
