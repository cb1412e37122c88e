package deliveries

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func call(handler http.HandlerFunc, method, target, id string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if id != "" {
		req.SetPathValue("id", id)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error.Code
}

func TestHandlers_GenerateAndTransitions(t *testing.T) {
	e := newEnv(t, envOptions{})
	h := NewHandler(e.service)

	w := call(h.HandleGenerate, http.MethodPost, "/v1/calendars/x/generate", e.calendar.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res GenerateResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.Created != 14 {
		t.Fatalf("expected 14 created, got %+v", res)
	}

	w = call(h.HandleList, http.MethodGet, "/v1/deliveries?calendar_id="+e.calendar.ID.String()+"&state=PROGRAMADA&from=2024-01-08&to=2024-01-08", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list TasksResponse
	json.NewDecoder(w.Body).Decode(&list)
	if len(list.Tasks) != 2 {
		t.Fatalf("expected 2 tasks on 2024-01-08, got %d", len(list.Tasks))
	}
	id := list.Tasks[0].ID.String()

	w = call(h.HandleDelivered, http.MethodPost, "/v1/deliveries/x/delivered", id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delivered: expected 200, got %d", w.Code)
	}
	var task TaskDTO
	json.NewDecoder(w.Body).Decode(&task)
	if task.State != StateDelivered {
		t.Fatalf("expected ENTREGADA, got %s", task.State)
	}

	w = call(h.HandleSkipped, http.MethodPost, "/v1/deliveries/x/skipped", id, nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "invalid_transition" {
		t.Fatalf("skip after delivery: expected 409 invalid_transition, got %d", w.Code)
	}

	w = call(h.HandleConfirm, http.MethodPost, "/v1/deliveries/x/confirm", list.Tasks[1].ID.String(), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("confirm scheduled task: expected 409, got %d", w.Code)
	}
}

func TestHandlers_ConfirmWithBody(t *testing.T) {
	e := newEnv(t, envOptions{noPrimary: true})
	h := NewHandler(e.service)
	e.service.Generate(context.Background(), e.calendar.ID)
	task := e.tasks(t, StatePending)[0]

	body, _ := json.Marshal(ConfirmRequest{AddressID: &e.home.ID})
	w := call(h.HandleConfirm, http.MethodPost, "/v1/deliveries/x/confirm", task.ID.String(), body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	other := e.tasks(t, StatePending)[0]
	w = call(h.HandleConfirm, http.MethodPost, "/v1/deliveries/x/confirm", other.ID.String(), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("confirm without address: expected 400, got %d", w.Code)
	}
}

func TestHandlers_BadInput(t *testing.T) {
	e := newEnv(t, envOptions{})
	h := NewHandler(e.service)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		target  string
		id      string
		status  int
		code    string
	}{
		{"generate bad id", h.HandleGenerate, "/v1/calendars/x/generate", "nope", http.StatusBadRequest, "invalid_request"},
		{"generate unknown calendar", h.HandleGenerate, "/v1/calendars/x/generate", uuid.NewString(), http.StatusNotFound, "calendar_not_found"},
		{"delivered unknown task", h.HandleDelivered, "/v1/deliveries/x/delivered", uuid.NewString(), http.StatusNotFound, "task_not_found"},
		{"list bad state", h.HandleList, "/v1/deliveries?state=LOST", "", http.StatusBadRequest, "invalid_request"},
		{"list bad date", h.HandleList, "/v1/deliveries?from=01/08/2024", "", http.StatusBadRequest, "invalid_request"},
		{"list bad calendar", h.HandleList, "/v1/deliveries?calendar_id=x", "", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(tt.handler, http.MethodPost, tt.target, tt.id, nil)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if code := errorCode(t, w); code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, code)
			}
		})
	}
}
