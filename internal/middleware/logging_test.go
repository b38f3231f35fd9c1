package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tags":[]}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/tags/top", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseEntry(t, buf)
	if entry.Msg != "request completed" {
		t.Errorf("unexpected message %q", entry.Msg)
	}
	if entry.Method != "GET" || entry.Path != "/tags/top" {
		t.Errorf("unexpected method/path %s %s", entry.Method, entry.Path)
	}
	if entry.Status != 200 {
		t.Errorf("expected status 200, got %d", entry.Status)
	}
	if entry.Size != len(`{"tags":[]}`) {
		t.Errorf("unexpected size %d", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
}

func TestLogging_WithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/tags/top", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseEntry(t, buf); entry.RequestID != "req-123" {
		t.Errorf("expected request_id req-123, got %q", entry.RequestID)
	}
}

func TestLogging_LevelsAndErrorCode(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		wantLevel string
		wantCode  string
	}{
		{name: "success ignores code", status: http.StatusOK, code: "ignored", wantLevel: "INFO"},
		{name: "client error", status: http.StatusBadRequest, code: "validation_error", wantLevel: "WARN", wantCode: "validation_error"},
		{name: "unavailable", status: http.StatusServiceUnavailable, code: "store_unavailable", wantLevel: "ERROR", wantCode: "store_unavailable"},
		{name: "server error without code", status: http.StatusInternalServerError, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code != "" {
					// The derived context is discarded; the code must still reach the log.
					_ = SetErrorCode(r.Context(), tt.code)
				}
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tags/trending", nil))

			entry := parseEntry(t, buf)
			if entry.Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, entry.Level)
			}
			if entry.ErrorCode != tt.wantCode {
				t.Errorf("expected error_code %q, got %q", tt.wantCode, entry.ErrorCode)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if code := GetErrorCode(req.Context()); code != "" {
		t.Errorf("expected empty code, got %q", code)
	}
	ctx := SetErrorCode(req.Context(), "internal_error")
	if code := GetErrorCode(ctx); code != "internal_error" {
		t.Errorf("expected internal_error, got %q", code)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env, level string
		wantDebug  bool
		wantInfo   bool
	}{
		{env: "development", wantDebug: true, wantInfo: true},
		{env: "production", wantDebug: false, wantInfo: true},
		{env: "production", level: "debug", wantDebug: true, wantInfo: true},
		{env: "development", level: "warn", wantDebug: false, wantInfo: false},
		{env: "development", level: "bogus", wantDebug: true, wantInfo: true},
	}

	for _, tt := range tests {
		logger := NewLogger(tt.env, tt.level)
		ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
		if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
			t.Errorf("NewLogger(%q, %q) debug enabled = %v, want %v", tt.env, tt.level, got, tt.wantDebug)
		}
		if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
			t.Errorf("NewLogger(%q, %q) info enabled = %v, want %v", tt.env, tt.level, got, tt.wantInfo)
		}
	}
}
