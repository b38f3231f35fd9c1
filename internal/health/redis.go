package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPinger is satisfied by every go-redis client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker checks the shared cache tier.
type RedisChecker struct {
	client RedisPinger
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client RedisPinger) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
