package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	dto "github.com/prometheus/client_model/go"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{name: "default", cfg: DefaultTagsLimit()},
		{name: "zero requests", cfg: RateLimitConfig{WindowDuration: time.Second}, wantErr: true},
		{name: "zero window", cfg: RateLimitConfig{RequestsPerWindow: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRateLimitStore_FixedWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewInMemoryRateLimitStore(clock)
	cfg := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _, _ := store.Allow(ctx, "k", cfg); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	clock.Advance(20 * time.Second)
	ok, retryAfter, err := store.Allow(ctx, "k", cfg)
	if err != nil || ok {
		t.Fatalf("expected 4th request to be blocked, ok=%v err=%v", ok, err)
	}
	if retryAfter != 40*time.Second {
		t.Errorf("expected retry after 40s, got %v", retryAfter)
	}

	if ok, _, _ := store.Allow(ctx, "other", cfg); !ok {
		t.Error("keys must be limited independently")
	}

	clock.Advance(40 * time.Second)
	if ok, _, _ := store.Allow(ctx, "k", cfg); !ok {
		t.Error("expected a new window after reset")
	}
}

func TestInMemoryRateLimitStore_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewInMemoryRateLimitStore(clock)
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	_, _, _ = store.Allow(context.Background(), "a", cfg)
	clock.Advance(30 * time.Second)
	_, _, _ = store.Allow(context.Background(), "b", cfg)
	clock.Advance(30 * time.Second)

	store.Cleanup()
	if _, ok := store.windows["a"]; ok {
		t.Error("expected finished window to be removed")
	}
	if _, ok := store.windows["b"]; !ok {
		t.Error("expected active window to be kept")
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, want: "ip:203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, want: "ip:198.51.100.2"},
		{name: "remote addr", remote: "192.0.2.1:5555", want: "ip:192.0.2.1"},
		{name: "ipv6 remote addr", remote: "[2001:db8::1]:443", want: "ip:2001:db8::1"},
		{name: "remote addr without port", remote: "192.0.2.9", want: "ip:192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tags/top", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.remote != "" {
				req.RemoteAddr = tt.remote
			}
			if got := IPKeyFunc()(req); got != tt.want {
				t.Errorf("IPKeyFunc() = %q, want %q", got, tt.want)
			}
		})
	}
}

type failingRateLimitStore struct{}

func (failingRateLimitStore) Allow(context.Context, string, RateLimitConfig) (bool, time.Duration, error) {
	return true, 0, errors.New("redis: connection refused")
}

func TestRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := NewMetrics()
	cfg := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	handler := RateLimiter(NewInMemoryRateLimitStore(clock), cfg, IPKeyFunc(), metrics, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/tags/trending", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		if i < 2 && last.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, last.Code)
		}
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After 60, got %q", last.Header().Get("Retry-After"))
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(last.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error.Code != "rate_limited" {
		t.Errorf("expected rate_limited, got %q", body.Error.Code)
	}

	if got := counterValue(t, metrics.rateLimitRequests, "/tags/trending"); got != 3 {
		t.Errorf("expected 3 checks, got %v", got)
	}
	if got := counterValue(t, metrics.rateLimitBlocked, "/tags/trending"); got != 1 {
		t.Errorf("expected 1 blocked, got %v", got)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	buf := &bytes.Buffer{}
	metrics := NewMetrics()
	handler := RateLimiter(failingRateLimitStore{}, DefaultTagsLimit(), IPKeyFunc(), metrics, newTestLogger(buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tags/top", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected request to pass on store error, got %d", rr.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"level":"WARN"`)) {
		t.Errorf("expected a warning, log: %s", buf.String())
	}
	var m dto.Metric
	if err := metrics.rateLimitStoreErrors.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("expected 1 store error, got %v", m.GetCounter().GetValue())
	}
}
