package mealoptions

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for meal options.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleAdd handles POST /v1/meals/{id}/options
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	mealID, ok := parseMealID(w, r)
	if !ok {
		return
	}

	var req AddOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	opt, err := h.service.AddOption(r.Context(), mealID, req)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, opt)
}

// HandleDuplicate handles POST /v1/meals/{id}/options/{index}/duplicate
func (h *Handler) HandleDuplicate(w http.ResponseWriter, r *http.Request) {
	mealID, ok := parseMealID(w, r)
	if !ok {
		return
	}
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	opt, err := h.service.DuplicateOption(r.Context(), mealID, index)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, opt)
}

// HandleRemove handles DELETE /v1/meals/{id}/options/{index}
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	mealID, ok := parseMealID(w, r)
	if !ok {
		return
	}
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	opts, err := h.service.RemoveOption(r.Context(), mealID, index)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OptionsResponse{MealID: mealID.String(), Options: opts})
}

// HandleTotals handles GET /v1/meals/{id}/options/{index}/totals
func (h *Handler) HandleTotals(w http.ResponseWriter, r *http.Request) {
	mealID, ok := parseMealID(w, r)
	if !ok {
		return
	}
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	totals, err := h.service.OptionTotals(r.Context(), mealID, index)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OptionTotalsResponse{
		MealID:      mealID.String(),
		OptionIndex: index,
		Totals:      totals,
	})
}

func parseMealID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "meal id must be a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

func parseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "option index must be a positive integer")
		return 0, false
	}
	return index, true
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOptionLimitExceeded):
		writeError(w, http.StatusBadRequest, "option_limit_exceeded", err.Error())
	case errors.Is(err, ErrLastOption):
		writeError(w, http.StatusBadRequest, "last_option", err.Error())
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, nutrients.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrOptionNotFound):
		writeError(w, http.StatusNotFound, "option_not_found", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "meal_not_found", "Meal not found")
	case errors.Is(err, ErrInvalidOptions), errors.Is(err, nutrients.ErrUnknownFood):
		log.Printf("ERROR mealoptions: stored options inconsistent: %v", err)
		writeError(w, http.StatusInternalServerError, "plan_data_integrity", "Meal options are inconsistent")
	default:
		log.Printf("ERROR mealoptions: %v", err)
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
