package notifications

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type TryRecordResponse struct {
	Recorded bool  `json:"recorded"`
	Event    Event `json:"event"`
}

type Handler struct {
	ledger    *Ledger
	reminders *Reminders
}

func NewHandler(ledger *Ledger, reminders *Reminders) *Handler {
	return &Handler{ledger: ledger, reminders: reminders}
}

// HandleTryRecord handles POST /v1/notifications/try-record
func (h *Handler) HandleTryRecord(w http.ResponseWriter, r *http.Request) {
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	recorded, err := h.ledger.TryRecord(r.Context(), ev)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TryRecordResponse{Recorded: recorded, Event: ev})
}

// HandleRemind handles POST /v1/plans/{id}/reminders?now=RFC3339
func (h *Handler) HandleRemind(w http.ResponseWriter, r *http.Request) {
	planID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid plan id")
		return
	}

	now := time.Now()
	if raw := r.URL.Query().Get("now"); raw != "" {
		now, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "now must be RFC3339")
			return
		}
	}

	res, err := h.reminders.RemindPendingMeals(r.Context(), planID, now)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, cycle.ErrInvalidCycleLength):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan_not_found", "Plan not found")
	case errors.Is(err, mealplans.ErrNoPlanDayForIndex):
		writeError(w, http.StatusInternalServerError, "plan_data_integrity", err.Error())
	default:
		log.Printf("ERROR notifications: %v", err)
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
