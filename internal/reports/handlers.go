package reports

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleAdherence handles GET /v1/reports/adherence?patient_id=&plan_id=&from=&to=&format=json|csv|pdf
func (h *Handler) HandleAdherence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	patientID, err := uuid.Parse(q.Get("patient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id is required")
		return
	}
	planID, err := uuid.Parse(q.Get("plan_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "plan_id is required")
		return
	}
	from, err := cycle.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
		return
	}
	to, err := cycle.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
		return
	}

	req := AdherenceRequest{
		PatientID: patientID,
		PlanID:    planID,
		From:      from,
		To:        to,
		Format:    strings.ToLower(q.Get("format")),
	}

	if req.Format == "" || req.Format == FormatJSON {
		report, err := h.service.Build(r.Context(), req)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	export, err := h.service.Export(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	if export.URL != "" {
		writeJSON(w, http.StatusOK, export)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(export.Data)
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid_format", "format must be json, csv or pdf")
	case errors.Is(err, ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, "invalid_date_range", "from must be before or equal to to")
	case errors.Is(err, ErrRangeTooLarge):
		writeError(w, http.StatusBadRequest, "range_too_large", err.Error())
	case errors.Is(err, ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "plan_not_found", "Plan not found")
	default:
		log.Printf("ERROR reports: %v", err)
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
