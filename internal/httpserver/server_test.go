package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fdg312/nutrition-engine/internal/auth"
	"github.com/fdg312/nutrition-engine/internal/config"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/fdg312/nutrition-engine/internal/storage/memory"
	"github.com/google/uuid"
)

func TestHealthz(t *testing.T) {
	srv := NewWithStorage(&config.Config{Port: 8080}, memory.New())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status=ok, got %s", resp["status"])
	}
}

func TestHealthzMethodNotAllowed(t *testing.T) {
	srv := NewWithStorage(&config.Config{Port: 8080}, memory.New())

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

type world struct {
	store   *memory.MemoryStorage
	patient storage.Patient
	other   storage.Patient
	tree    *storage.PlanTree
}

// seed: one patient with a 7-day published plan from 2024-01-01, lunch of
// 150 g of a 200 kcal/100 g food every day.
func seed(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	w := &world{store: store, patient: storage.Patient{Name: "Ana"}, other: storage.Patient{Name: "Luis"}}
	store.GetPatientsStorage().CreatePatient(ctx, &w.patient)
	store.GetPatientsStorage().CreatePatient(ctx, &w.other)

	food := storage.Food{Name: "Chicken", CaloriesPer100g: 200, ProteinPer100g: 30}
	store.GetFoodsStorage().CreateFood(ctx, &food)

	tree := &storage.PlanTree{Plan: storage.NutritionPlan{
		PatientID: w.patient.ID,
		Author:    storage.ProfessionalRef{Kind: storage.ProfessionalNutritionist, ID: uuid.New()},
		Name:      "Week",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:    storage.PlanStatusPublished,
	}}
	for i := 1; i <= 7; i++ {
		tree.Days = append(tree.Days, storage.PlanDay{DayIndex: i, Meals: []storage.Meal{{
			MealType:  storage.MealTypeLunch,
			SortOrder: 1,
			Options:   []storage.MealOption{{Index: 1, Label: "Primary", Portions: []storage.FoodPortion{{FoodID: food.ID, Grams: 150}}}},
		}}})
	}
	if err := store.GetPlansStorage().CreatePlanTree(ctx, tree); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	w.tree = tree
	return w
}

func do(t *testing.T, h http.Handler, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.RemoteAddr = "192.0.2.10:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_TodayThenConfirm(t *testing.T) {
	w := seed(t)
	h := NewWithStorage(&config.Config{AuthMode: "none"}, w.store).Handler()

	rec := do(t, h, http.MethodGet, "/v1/plans/"+w.tree.Plan.ID.String()+"/today?date=2024-01-10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("today: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var today struct {
		DayIndex int `json:"day_index"`
		Meals    []struct {
			ID string `json:"id"`
		} `json:"meals"`
	}
	json.NewDecoder(rec.Body).Decode(&today)
	if today.DayIndex != 3 || len(today.Meals) != 1 {
		t.Fatalf("unexpected today response %+v", today)
	}

	confirm := map[string]interface{}{
		"patient_id": w.patient.ID,
		"meal_id":    today.Meals[0].ID,
		"taken_at":   "2024-01-10T13:00:00Z",
	}
	rec = do(t, h, http.MethodPost, "/v1/intakes/confirm", "", confirm)
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var intake struct {
		Totals struct {
			Calories float64 `json:"calories"`
		} `json:"totals"`
	}
	json.NewDecoder(rec.Body).Decode(&intake)
	if intake.Totals.Calories != 300 {
		t.Fatalf("expected 300 kcal, got %v", intake.Totals.Calories)
	}

	rec = do(t, h, http.MethodPost, "/v1/intakes/confirm", "", confirm)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate confirm: expected 409, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/v1/reports/adherence?patient_id="+w.patient.ID.String()+"&plan_id="+w.tree.Plan.ID.String()+"&from=2024-01-10&to=2024-01-11", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Summary struct {
			Planned   int     `json:"planned_meals"`
			Confirmed int     `json:"confirmed_meals"`
			Pct       float64 `json:"adherence_pct"`
		} `json:"summary"`
	}
	json.NewDecoder(rec.Body).Decode(&report)
	if report.Summary.Planned != 2 || report.Summary.Confirmed != 1 || report.Summary.Pct != 50 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
}

func TestRouter_PatientScoping(t *testing.T) {
	w := seed(t)
	cfg := &config.Config{
		AuthMode:      "dev",
		AuthRequired:  true,
		JWTSecret:     "router-test-secret",
		JWTIssuer:     "nutrition-engine-test",
		JWTTTLMinutes: 60,
	}
	h := NewWithStorage(cfg, w.store).Handler()

	issue := func(body map[string]string) string {
		rec := do(t, h, http.MethodPost, "/v1/auth/dev", "", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("dev auth: expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp auth.DevAuthResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		return resp.AccessToken
	}
	patientToken := issue(map[string]string{"role": auth.RolePatient, "subject": w.patient.ID.String()})
	proToken := issue(nil)

	planPath := "/v1/plans/" + w.tree.Plan.ID.String()
	ownIntakes := "/v1/intakes?date=2024-01-10&patient_id=" + w.patient.ID.String()
	otherIntakes := "/v1/intakes?date=2024-01-10&patient_id=" + w.other.ID.String()

	tests := []struct {
		name   string
		method string
		target string
		token  string
		body   interface{}
		status int
	}{
		{"no token", http.MethodGet, planPath, "", nil, http.StatusUnauthorized},
		{"patient reads own plan", http.MethodGet, planPath, patientToken, nil, http.StatusOK},
		{"patient lists own intakes", http.MethodGet, ownIntakes, patientToken, nil, http.StatusOK},
		{"patient lists other intakes", http.MethodGet, otherIntakes, patientToken, nil, http.StatusNotFound},
		{"patient confirms for other", http.MethodPost, "/v1/intakes/confirm", patientToken,
			map[string]interface{}{"patient_id": w.other.ID, "meal_id": w.tree.Days[0].Meals[0].ID}, http.StatusNotFound},
		{"patient cannot publish", http.MethodPost, planPath + "/publish", patientToken, nil, http.StatusForbidden},
		{"professional lists any intakes", http.MethodGet, otherIntakes, proToken, nil, http.StatusOK},
		{"professional reads plan", http.MethodGet, planPath, proToken, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.token, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPatientFromBody_RestoresBody(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/intakes/freeform", bytes.NewBufferString(`{"patient_id":"`+id.String()+`","notes":"x"}`))

	got, err := patientFromBody(req)
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	var again map[string]string
	if err := json.NewDecoder(req.Body).Decode(&again); err != nil || again["notes"] != "x" {
		t.Fatalf("body not restored: %v %v", again, err)
	}
}
