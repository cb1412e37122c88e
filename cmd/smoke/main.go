// Command smoke runs an end-to-end pass over the API against an in-process
// server backed by the memory store: plan authoring, daily schedule, meal
// confirmation, deliveries, notifications and the adherence report.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/nutrition-engine/internal/config"
	"github.com/fdg312/nutrition-engine/internal/httpserver"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/fdg312/nutrition-engine/internal/storage/memory"
	"github.com/google/uuid"
)

var (
	apiBase string
	token   string
	client  = &http.Client{Timeout: 30 * time.Second}

	patient    storage.Patient
	food       storage.Food
	contract   storage.Contract
	calendar   storage.DeliveryCalendar
	planID     string
	lunchID    string
	firstTask  string
	reportDays = "from=2024-01-08&to=2024-01-14"
)

func main() {
	fmt.Println("=== Nutrition Engine Smoke Test ===")
	fmt.Println()

	store := memory.New()
	if err := seed(context.Background(), store); err != nil {
		fmt.Printf("seed failed: %v\n", err)
		os.Exit(1)
	}

	cfg := &config.Config{
		Env:                       "local",
		AuthMode:                  "dev",
		AuthRequired:              true,
		JWTSecret:                 "smoke-secret",
		JWTIssuer:                 "nutrition-engine-smoke",
		JWTTTLMinutes:             30,
		NotificationChannels:      []string{"log"},
		NotifyOnDeliveryCompleted: true,
		MealReminderGraceMins:     30,
	}
	srv := httptest.NewServer(httpserver.NewWithStorage(cfg, store).Handler())
	defer srv.Close()
	apiBase = srv.URL

	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Printf("Patient: %s\n", patient.ID)
	fmt.Println()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Dev Auth", testDevAuth},
		{"Create Plan", testCreatePlan},
		{"Publish Plan", testPublishPlan},
		{"Today's Meals", testTodaysMeals},
		{"Add Alternative Option", testAddOption},
		{"Confirm Meal", testConfirmMeal},
		{"Duplicate Confirmation Rejected", testDuplicateConfirmation},
		{"Daily Totals", testDailyTotals},
		{"Generate Deliveries", testGenerateDeliveries},
		{"Mark Delivered", testMarkDelivered},
		{"Notification Recorded Once", testTryRecord},
		{"Meal Reminders", testReminders},
		{"Adherence Report (CSV)", testAdherenceCSV},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("❌ FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("✅ OK\n")
	}

	fmt.Println()
	if failed {
		fmt.Println("❌ SMOKE TEST FAILED")
		os.Exit(1)
	}
	fmt.Println("✅ SMOKE TEST PASSED")
}

// seed creates what external collaborators own: patient, food, contract and calendar.
func seed(ctx context.Context, store *memory.MemoryStorage) error {
	patient = storage.Patient{Name: "Smoke Patient", Email: "smoke@example.com", TimeZone: "UTC"}
	if err := store.GetPatientsStorage().CreatePatient(ctx, &patient); err != nil {
		return err
	}
	addr := storage.DeliveryAddress{PatientID: patient.ID, Label: "home", Line1: "Calle 1", City: "Bogota", IsPrimary: true}
	if err := store.GetPatientsStorage().CreateAddress(ctx, &addr); err != nil {
		return err
	}

	food = storage.Food{Name: "Chicken breast", CaloriesPer100g: 200, ProteinPer100g: 30, FatPer100g: 8}
	if err := store.GetFoodsStorage().CreateFood(ctx, &food); err != nil {
		return err
	}

	contract = storage.Contract{
		PatientID:   patient.ID,
		ServiceType: "meal_delivery",
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := store.GetContractsStorage().CreateContract(ctx, &contract); err != nil {
		return err
	}
	calendar = storage.DeliveryCalendar{
		ContractID: contract.ID,
		StartDate:  time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
	}
	return store.GetContractsStorage().CreateCalendar(ctx, &calendar)
}

func testHealthz() error {
	resp, err := doRequest(http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusOK, nil)
}

func testDevAuth() error {
	resp, err := doRequest(http.MethodPost, "/v1/auth/dev", map[string]string{"role": "professional", "subject": "smoke-nutritionist"})
	if err != nil {
		return err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := expectStatus(resp, http.StatusOK, &out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return fmt.Errorf("empty access_token")
	}
	token = out.AccessToken
	return nil
}

func testCreatePlan() error {
	days := make([]map[string]interface{}, 0, 7)
	for i := 1; i <= 7; i++ {
		days = append(days, map[string]interface{}{
			"day_index": i,
			"meals": []map[string]interface{}{{
				"meal_type":        "lunch",
				"recommended_time": "13:00",
				"sort_order":       1,
				"options": []map[string]interface{}{{
					"label":    "Primary",
					"portions": []map[string]interface{}{{"food_id": food.ID.String(), "grams": 150}},
				}},
			}},
		})
	}
	contractID := contract.ID.String()
	body := map[string]interface{}{
		"patient_id":     patient.ID.String(),
		"author":         map[string]string{"kind": "nutritionist", "id": uuid.NewString()},
		"contract_id":    contractID,
		"name":           "Smoke week",
		"calorie_target": 1800,
		"start_date":     "2024-01-01",
		"end_date":       "2024-03-31",
		"days":           days,
	}
	resp, err := doRequest(http.MethodPost, "/v1/plans", body)
	if err != nil {
		return err
	}
	var out struct {
		Plan struct {
			ID string `json:"id"`
		} `json:"plan"`
	}
	if err := expectStatus(resp, http.StatusCreated, &out); err != nil {
		return err
	}
	planID = out.Plan.ID
	return nil
}

func testPublishPlan() error {
	resp, err := doRequest(http.MethodPost, "/v1/plans/"+planID+"/publish", nil)
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusOK, nil)
}

func testTodaysMeals() error {
	resp, err := doRequest(http.MethodGet, "/v1/plans/"+planID+"/today?date=2024-01-10", nil)
	if err != nil {
		return err
	}
	var out struct {
		DayIndex int `json:"day_index"`
		Meals    []struct {
			ID string `json:"id"`
		} `json:"meals"`
	}
	if err := expectStatus(resp, http.StatusOK, &out); err != nil {
		return err
	}
	if out.DayIndex != 3 || len(out.Meals) != 1 {
		return fmt.Errorf("expected day 3 with one meal, got day %d with %d meals", out.DayIndex, len(out.Meals))
	}
	lunchID = out.Meals[0].ID
	return nil
}

func testAddOption() error {
	body := map[string]interface{}{
		"label":    "Lighter",
		"portions": []map[string]interface{}{{"food_id": food.ID.String(), "grams": 100}},
	}
	resp, err := doRequest(http.MethodPost, "/v1/meals/"+lunchID+"/options", body)
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusCreated, nil)
}

func confirmBody() map[string]interface{} {
	return map[string]interface{}{
		"patient_id": patient.ID.String(),
		"meal_id":    lunchID,
		"taken_at":   "2024-01-10T13:05:00Z",
	}
}

func testConfirmMeal() error {
	resp, err := doRequest(http.MethodPost, "/v1/intakes/confirm", confirmBody())
	if err != nil {
		return err
	}
	var out struct {
		Totals struct {
			Calories float64 `json:"calories"`
		} `json:"totals"`
	}
	if err := expectStatus(resp, http.StatusCreated, &out); err != nil {
		return err
	}
	if out.Totals.Calories != 300 {
		return fmt.Errorf("expected 300 kcal, got %v", out.Totals.Calories)
	}
	return nil
}

func testDuplicateConfirmation() error {
	resp, err := doRequest(http.MethodPost, "/v1/intakes/confirm", confirmBody())
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusConflict, nil)
}

func testDailyTotals() error {
	resp, err := doRequest(http.MethodGet, "/v1/intakes/daily-totals?date=2024-01-10&patient_id="+patient.ID.String(), nil)
	if err != nil {
		return err
	}
	var out struct {
		Records int `json:"records"`
	}
	if err := expectStatus(resp, http.StatusOK, &out); err != nil {
		return err
	}
	if out.Records != 1 {
		return fmt.Errorf("expected 1 record, got %d", out.Records)
	}
	return nil
}

func testGenerateDeliveries() error {
	for run := 0; run < 2; run++ {
		resp, err := doRequest(http.MethodPost, "/v1/calendars/"+calendar.ID.String()+"/generate", nil)
		if err != nil {
			return err
		}
		var out struct {
			Created  int `json:"created"`
			Existing int `json:"existing"`
		}
		if err := expectStatus(resp, http.StatusOK, &out); err != nil {
			return err
		}
		if run == 0 && out.Created != 7 {
			return fmt.Errorf("expected 7 tasks created, got %d", out.Created)
		}
		if run == 1 && (out.Created != 0 || out.Existing != 7) {
			return fmt.Errorf("second run not idempotent: created=%d existing=%d", out.Created, out.Existing)
		}
	}

	resp, err := doRequest(http.MethodGet, "/v1/deliveries?calendar_id="+calendar.ID.String(), nil)
	if err != nil {
		return err
	}
	var list struct {
		Tasks []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"tasks"`
	}
	if err := expectStatus(resp, http.StatusOK, &list); err != nil {
		return err
	}
	if len(list.Tasks) != 7 {
		return fmt.Errorf("expected 7 tasks, got %d", len(list.Tasks))
	}
	firstTask = list.Tasks[0].ID
	return nil
}

func testMarkDelivered() error {
	resp, err := doRequest(http.MethodPost, "/v1/deliveries/"+firstTask+"/delivered", nil)
	if err != nil {
		return err
	}
	if err := expectStatus(resp, http.StatusOK, nil); err != nil {
		return err
	}

	resp, err = doRequest(http.MethodPost, "/v1/deliveries/"+firstTask+"/skipped", nil)
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusConflict, nil)
}

func testTryRecord() error {
	event := map[string]string{
		"event_type":   "smoke_check",
		"entity_id":    planID,
		"entity_type":  "plan",
		"recipient_id": patient.ID.String(),
	}
	for i, want := range []bool{true, false} {
		resp, err := doRequest(http.MethodPost, "/v1/notifications/try-record", event)
		if err != nil {
			return err
		}
		var out struct {
			Recorded bool `json:"recorded"`
		}
		if err := expectStatus(resp, http.StatusOK, &out); err != nil {
			return err
		}
		if out.Recorded != want {
			return fmt.Errorf("call %d: expected recorded=%t", i+1, want)
		}
	}
	return nil
}

func testReminders() error {
	// 2024-01-11 20:00 UTC: lunch of day 4 is past due and not confirmed
	for i, want := range []int{1, 0} {
		resp, err := doRequest(http.MethodPost, "/v1/plans/"+planID+"/reminders?now=2024-01-11T20:00:00Z", nil)
		if err != nil {
			return err
		}
		var out struct {
			Due  int `json:"due"`
			Sent int `json:"sent"`
		}
		if err := expectStatus(resp, http.StatusOK, &out); err != nil {
			return err
		}
		if out.Due != 1 || out.Sent != want {
			return fmt.Errorf("run %d: expected due=1 sent=%d, got due=%d sent=%d", i+1, want, out.Due, out.Sent)
		}
	}
	return nil
}

func testAdherenceCSV() error {
	path := fmt.Sprintf("/v1/reports/adherence?patient_id=%s&plan_id=%s&%s&format=csv", patient.ID, planID, reportDays)
	resp, err := doRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 8 || !strings.HasPrefix(lines[0], "date,") {
		return fmt.Errorf("unexpected csv (%d lines)", len(lines))
	}
	return nil
}

// ---- helpers ----

func doRequest(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

func expectStatus(resp *http.Response, want int, out interface{}) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
