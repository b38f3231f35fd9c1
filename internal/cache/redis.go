package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces result cache keys in Redis.
const DefaultRedisPrefix = "trendtags:cache:"

// Remote is a shared second cache tier. Values are opaque bytes.
type Remote interface {
	// Get returns the stored value and its remaining time to live.
	// found is false when the key is absent or has no expiry.
	Get(ctx context.Context, key string) (data []byte, ttl time.Duration, found bool, err error)

	// Set stores data under key for ttl.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// RedisRemote implements Remote on Redis.
type RedisRemote struct {
	rdb    goredis.Cmdable
	prefix string
}

// NewRedisRemote creates a RedisRemote. An empty prefix uses DefaultRedisPrefix.
func NewRedisRemote(rdb goredis.Cmdable, prefix string) *RedisRemote {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRemote{
		rdb:    rdb,
		prefix: prefix,
	}
}

// Get implements Remote. The value and its remaining TTL are read in one
// round trip so a hit can be cached locally without extending its life.
func (r *RedisRemote) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	k := r.prefix + key

	pipe := r.rdb.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, false, fmt.Errorf("failed to read cache key %s: %w", k, err)
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read cache key %s: %w", k, err)
	}

	// PTTL reports -1 (no expiry) and -2 (missing) as raw negatives.
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return nil, 0, false, nil
	}
	return data, ttl, true, nil
}

// Set implements Remote.
func (r *RedisRemote) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	k := r.prefix + key
	if err := r.rdb.Set(ctx, k, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", k, err)
	}
	return nil
}
