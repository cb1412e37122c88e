package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fdg312/nutrition-engine/internal/auth"
	"github.com/google/uuid"
)

var errPatientUnresolved = errors.New("patient not resolvable from request")

// patientResolver извлекает id пациента, к данным которого обращается запрос.
type patientResolver func(r *http.Request) (uuid.UUID, error)

// patientScoped пропускает профессионалов без ограничений; пациент видит
// только свои данные. Чужие данные отвечают 404, а не 403, чтобы не
// раскрывать их существование. При AUTH_REQUIRED=0 проверка пропускается.
func (s *Server) patientScoped(resolve patientResolver, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.config.AuthRequired {
			next(w, r)
			return
		}
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		if p.Role != auth.RolePatient {
			next(w, r)
			return
		}

		patientID, err := resolve(r)
		if err != nil || patientID.String() != p.Subject {
			writeError(w, http.StatusNotFound, "not_found", "Not found")
			return
		}
		next(w, r)
	}
}

// professionalOnly закрывает эндпоинт для пациентов.
func (s *Server) professionalOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.config.AuthRequired {
			next(w, r)
			return
		}
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		if p.Role != auth.RoleProfessional {
			writeError(w, http.StatusForbidden, "forbidden", "Professional access required")
			return
		}
		next(w, r)
	}
}

func patientFromQuery(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.URL.Query().Get("patient_id"))
}

// patientFromBody reads patient_id from a JSON body and restores the body.
func patientFromBody(r *http.Request) (uuid.UUID, error) {
	if r.Body == nil {
		return uuid.Nil, errPatientUnresolved
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	r.Body.Close()
	if err != nil {
		return uuid.Nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var peek struct {
		PatientID uuid.UUID `json:"patient_id"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil || peek.PatientID == uuid.Nil {
		return uuid.Nil, errPatientUnresolved
	}
	return peek.PatientID, nil
}

func (s *Server) patientOfPlan(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, err
	}
	plan, err := s.storage.GetPlansStorage().GetPlan(r.Context(), id)
	if err != nil {
		return uuid.Nil, err
	}
	return plan.PatientID, nil
}

func (s *Server) patientOfIntake(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, err
	}
	rec, err := s.storage.GetIntakesStorage().GetIntake(r.Context(), id)
	if err != nil {
		return uuid.Nil, err
	}
	return rec.PatientID, nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
