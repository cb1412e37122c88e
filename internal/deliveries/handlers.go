package deliveries

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleGenerate handles POST /v1/calendars/{id}/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid calendar id")
	if !ok {
		return
	}

	res, err := h.service.Generate(r.Context(), id)
	if err != nil {
		handleError(w, err, "calendar_not_found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDelivered handles POST /v1/deliveries/{id}/delivered
func (h *Handler) HandleDelivered(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid task id")
	if !ok {
		return
	}

	task, err := h.service.MarkDelivered(r.Context(), id)
	if err != nil {
		handleError(w, err, "task_not_found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleSkipped handles POST /v1/deliveries/{id}/skipped
func (h *Handler) HandleSkipped(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid task id")
	if !ok {
		return
	}

	task, err := h.service.MarkSkipped(r.Context(), id)
	if err != nil {
		handleError(w, err, "task_not_found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleConfirm handles POST /v1/deliveries/{id}/confirm; the body is optional.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid task id")
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	task, err := h.service.Confirm(r.Context(), id, req.AddressID)
	if err != nil {
		handleError(w, err, "task_not_found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleList handles GET /v1/deliveries?calendar_id=&state=&from=&to=&limit=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query TaskQuery

	if raw := q.Get("calendar_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid calendar_id")
			return
		}
		query.CalendarID = &id
	}
	query.State = q.Get("state")

	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &query.From}, {"to", &query.To}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		d, err := cycle.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", p.key+" must be YYYY-MM-DD")
			return
		}
		*p.dst = &d
	}

	if raw := q.Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			query.Limit = l
		}
	}

	resp, err := h.service.ListTasks(r.Context(), query)
	if err != nil {
		handleError(w, err, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func pathID(w http.ResponseWriter, r *http.Request, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return uuid.Nil, false
	}
	return id, true
}

func handleError(w http.ResponseWriter, err error, notFoundCode string) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrNoPlanForContract):
		writeError(w, http.StatusUnprocessableEntity, "no_plan_for_contract", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundCode, "Not found")
	case errors.Is(err, mealplans.ErrNoPlanDayForIndex):
		writeError(w, http.StatusInternalServerError, "plan_data_integrity", err.Error())
	default:
		log.Printf("ERROR deliveries: %v", err)
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
