package mealplans

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for nutrition plans.
type Handler struct {
	service *Service
}

// NewHandler creates a new meal plans handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleCreate handles POST /v1/plans
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	resp, err := h.service.CreatePlan(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleGet handles GET /v1/plans/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	planID, ok := parsePlanID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.GetPlan(r.Context(), planID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePublish handles POST /v1/plans/{id}/publish
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	planID, ok := parsePlanID(w, r)
	if !ok {
		return
	}

	plan, err := h.service.Publish(r.Context(), planID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// HandleToday handles GET /v1/plans/{id}/today?date=YYYY-MM-DD
func (h *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	planID, ok := parsePlanID(w, r)
	if !ok {
		return
	}

	var date *time.Time
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := cycle.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		date = &d
	}

	resp, err := h.service.TodaysMeals(r.Context(), planID, date)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parsePlanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "plan id must be a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

func handleError(w http.ResponseWriter, err error) {
	var authoring *AuthoringError
	switch {
	case errors.As(err, &authoring):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"code":     "invalid_authoring",
				"message":  err.Error(),
				"problems": authoring.Problems,
			},
		})
	case errors.Is(err, ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, cycle.ErrPlanNotYetActive):
		writeError(w, http.StatusUnprocessableEntity, "plan_not_yet_active", err.Error())
	case errors.Is(err, ErrPlanEnded):
		writeError(w, http.StatusUnprocessableEntity, "plan_ended", err.Error())
	case errors.Is(err, ErrNoPlanDayForIndex), errors.Is(err, cycle.ErrInvalidCycleLength):
		writeError(w, http.StatusInternalServerError, "plan_data_integrity", "Plan is missing the day for this date")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan_not_found", "Plan not found")
	default:
		log.Printf("ERROR mealplans: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
