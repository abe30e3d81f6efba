package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pressmill/pressmill/copilot-core/internal/api/middleware"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLog redirects the global logger into a buffer for one test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLogger_EmitsRequestEvent(t *testing.T) {
	buf := captureLog(t)

	handler := chimw.RequestID(middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities/nope", nil)
	req.Header.Set("X-Actor", "editor@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var event map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if got, want := event["message"], "admin api request"; got != want {
		t.Errorf("message = %v, want %v", got, want)
	}
	if got, want := event["level"], "warn"; got != want {
		t.Errorf("level = %v, want %v for a 404", got, want)
	}
	if got, want := event["status"], float64(http.StatusNotFound); got != want {
		t.Errorf("status = %v, want %v", got, want)
	}
	if got, want := event["actor"], "editor@example.com"; got != want {
		t.Errorf("actor = %v, want %v", got, want)
	}
	if id, _ := event["request_id"].(string); id == "" {
		t.Error("request_id missing from log event")
	}
	if n, _ := event["bytes"].(float64); n == 0 {
		t.Error("bytes = 0, want response body size")
	}
}

func TestLogger_ServerErrorLogsAtError(t *testing.T) {
	buf := captureLog(t)

	handler := middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var event map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if got, want := event["level"], "error"; got != want {
		t.Errorf("level = %v, want %v for a 502", got, want)
	}
	if _, ok := event["actor"]; ok {
		t.Error("actor present without an X-Actor header")
	}
}

func TestTelemetry_PassesThroughResponse(t *testing.T) {
	handler := chimw.RequestID(middleware.Telemetry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tools/content_stats/invoke", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got, want := rec.Body.String(), `{"ok":true}`; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}
