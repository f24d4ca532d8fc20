package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func serveThrough(t *testing.T, status int, body string) map[string]any {
	t.Helper()
	buf := captureLog(t)

	h := chimw.RequestID(Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model_info", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v (%s)", err, buf.String())
	}
	return entry
}

func TestLoggerEmitsRequestFields(t *testing.T) {
	entry := serveThrough(t, http.StatusOK, "ok")

	if entry["method"] != "GET" || entry["path"] != "/model_info" {
		t.Errorf("method/path = %v/%v", entry["method"], entry["path"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(2) {
		t.Errorf("bytes = %v, want 2", entry["bytes"])
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("request_id is empty; log lines cannot correlate with spans")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestLoggerEscalatesLevelByStatus(t *testing.T) {
	if entry := serveThrough(t, http.StatusNotFound, "miss"); entry["level"] != "warn" {
		t.Errorf("4xx level = %v, want warn", entry["level"])
	}
	if entry := serveThrough(t, http.StatusBadGateway, "boom"); entry["level"] != "error" {
		t.Errorf("5xx level = %v, want error", entry["level"])
	}
}
