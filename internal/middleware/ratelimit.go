package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is a fixed-window limit: at most RequestsPerWindow
// requests per key in each WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate checks that both fields are positive.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// DefaultTagsLimit applies to the /tags routes.
func DefaultTagsLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 120,
		WindowDuration:    time.Minute,
	}
}

// RateLimitStore counts requests per key.
type RateLimitStore interface {
	// Allow counts one request for key. When the limit is exceeded it
	// returns false and the time until the window resets.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, retryAfter time.Duration, err error)
}

type window struct {
	count int
	end   time.Time
}

// InMemoryRateLimitStore is a single-process RateLimitStore.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   clockwork.Clock
}

// NewInMemoryRateLimitStore creates a store on clock; nil means the real clock.
func NewInMemoryRateLimitStore(clock clockwork.Clock) *InMemoryRateLimitStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryRateLimitStore{
		windows: make(map[string]*window),
		clock:   clock,
	}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		s.windows[key] = &window{count: 1, end: now.Add(config.WindowDuration)}
		return true, 0, nil
	}
	if w.count < config.RequestsPerWindow {
		w.count++
		return true, 0, nil
	}
	return false, w.end.Sub(now), nil
}

// Cleanup drops finished windows.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, key)
		}
	}
}

// DefaultRateLimitPrefix namespaces rate limit counters in Redis.
const DefaultRateLimitPrefix = "trendtags:ratelimit:"

// fixedWindowScript increments the counter, starts the window on the first
// hit and returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisRateLimitStore shares fixed windows between replicas.
type RedisRateLimitStore struct {
	rdb    redis.Scripter
	prefix string
}

// NewRedisRateLimitStore creates a store using DefaultRateLimitPrefix.
func NewRedisRateLimitStore(rdb redis.Scripter) *RedisRateLimitStore {
	return &RedisRateLimitStore{rdb: rdb, prefix: DefaultRateLimitPrefix}
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, time.Duration, error) {
	res, err := fixedWindowScript.Run(ctx, s.rdb,
		[]string{s.prefix + key},
		config.WindowDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return true, 0, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return true, 0, fmt.Errorf("unexpected rate limit script result %v", res)
	}

	if res[0] <= int64(config.RequestsPerWindow) {
		return true, 0, nil
	}
	retryAfter := time.Duration(res[1]) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = config.WindowDuration
	}
	return false, retryAfter, nil
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys requests by client IP: the first X-Forwarded-For entry,
// then X-Real-IP, then the remote address.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return "ip:" + strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return "ip:" + strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr
		}
		return "ip:" + host
	}
}

// RateLimiter rejects requests over the limit with 429 and a Retry-After
// header. Store errors are logged and the request is allowed through.
// metrics and logger may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := normalizePath(r.URL.Path)
			if metrics != nil {
				metrics.IncRateLimitRequests(route)
			}

			allowed, retryAfter, err := store.Allow(r.Context(), keyFunc(r), config)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limit store failed, allowing request", "error", err)
				if metrics != nil {
					metrics.IncRateLimitStoreErrors()
				}
				next.ServeHTTP(w, r)
				return
			}
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.IncRateLimitBlocked(route)
			}
			SetErrorCode(r.Context(), "rate_limited")

			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]map[string]string{
				"error": {"code": "rate_limited", "message": "Too many requests"},
			})
		})
	}
}
