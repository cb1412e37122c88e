package intakes

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealoptions"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleConfirm handles POST /v1/intakes/confirm
func (h *Handlers) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmMealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	intake, err := h.service.ConfirmMeal(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intake)
}

// HandleFreeform handles POST /v1/intakes/freeform
func (h *Handlers) HandleFreeform(w http.ResponseWriter, r *http.Request) {
	var req FreeformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	intake, err := h.service.LogFreeform(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intake)
}

// HandleList handles GET /v1/intakes?patient_id=&date=
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	patientID, date, ok := patientAndDate(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListIntakes(r.Context(), patientID, date)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDailyTotals handles GET /v1/intakes/daily-totals?patient_id=&date=
func (h *Handlers) HandleDailyTotals(w http.ResponseWriter, r *http.Request) {
	patientID, date, ok := patientAndDate(w, r)
	if !ok {
		return
	}

	resp, err := h.service.DailyTotals(r.Context(), patientID, date)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTotals handles GET /v1/intakes/{id}/totals
func (h *Handlers) HandleTotals(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid intake id")
		return
	}

	resp, err := h.service.Totals(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDelete handles DELETE /v1/intakes/{id}?patient_id=
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid intake id")
		return
	}
	patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id is required")
		return
	}

	if err := h.service.DeleteIntake(r.Context(), patientID, id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// patientAndDate reads patient_id and date; date defaults to today (UTC).
func patientAndDate(w http.ResponseWriter, r *http.Request) (uuid.UUID, time.Time, bool) {
	q := r.URL.Query()
	patientID, err := uuid.Parse(q.Get("patient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id is required")
		return uuid.Nil, time.Time{}, false
	}

	date := cycle.Date(time.Now().UTC())
	if s := q.Get("date"); s != "" {
		date, err = cycle.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return uuid.Nil, time.Time{}, false
		}
	}
	return patientID, date, true
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateConfirmation):
		writeError(w, http.StatusConflict, "duplicate_confirmation", err.Error())
	case errors.Is(err, cycle.ErrPlanNotYetActive):
		writeError(w, http.StatusUnprocessableEntity, "plan_not_yet_active", err.Error())
	case errors.Is(err, mealplans.ErrPlanEnded):
		writeError(w, http.StatusUnprocessableEntity, "plan_ended", err.Error())
	case errors.Is(err, ErrMealNotScheduled):
		writeError(w, http.StatusUnprocessableEntity, "meal_not_scheduled", err.Error())
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, mealoptions.ErrInvalidArgument), errors.Is(err, nutrients.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrMealNotFound):
		writeError(w, http.StatusNotFound, "meal_not_found", err.Error())
	case errors.Is(err, ErrOptionNotFound):
		writeError(w, http.StatusNotFound, "option_not_found", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "intake_not_found", "Intake not found")
	case errors.Is(err, nutrients.ErrUnknownFood), errors.Is(err, mealoptions.ErrInvalidOptions):
		log.Printf("ERROR intakes: data integrity: %v", err)
		writeError(w, http.StatusInternalServerError, "data_integrity", "Stored data is inconsistent")
	default:
		log.Printf("ERROR intakes: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
