//go:build integration

package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	cfg := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}
	ctx := context.Background()
	key := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	for i := 0; i < 5; i++ {
		allowed, _, err := store.Allow(ctx, key, cfg)
		if err != nil {
			t.Fatalf("Allow() returned error: %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter, err := store.Allow(ctx, key, cfg)
	if err != nil {
		t.Fatalf("Allow() returned error: %v", err)
	}
	if allowed {
		t.Error("6th request should be blocked")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("expected retryAfter within the window, got %v", retryAfter)
	}

	ttl, err := client.PTTL(ctx, DefaultRateLimitPrefix+key).Result()
	if err != nil {
		t.Fatalf("PTTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected window expiry to be set once, got %v", ttl)
	}
}

func TestRedisRateLimitStore_WindowResets(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 200 * time.Millisecond}
	ctx := context.Background()

	if ok, _, _ := store.Allow(ctx, "reset", cfg); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _, _ := store.Allow(ctx, "reset", cfg); ok {
		t.Fatal("second request should be blocked")
	}
	time.Sleep(300 * time.Millisecond)
	if ok, _, _ := store.Allow(ctx, "reset", cfg); !ok {
		t.Error("expected a new window after expiry")
	}
}
