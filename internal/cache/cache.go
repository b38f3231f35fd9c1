// Package cache memoizes operation results for a fixed time window.
//
// Entries are keyed by operation name and arguments (see NewKey) and expire
// exactly TTL after they were computed. Expired entries are dropped lazily
// on access, by EvictExpired, or when the least recently used entry has to
// make room. Failed computations are never stored.
//
// An optional Remote tier (RedisRemote) lets several processes share
// results; a remote hit keeps the remote entry's remaining lifetime.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is the lifetime of every cached result.
	DefaultTTL = time.Hour

	// DefaultMaxEntries bounds the local cache when Options.MaxEntries is zero.
	DefaultMaxEntries = 1024

	// DefaultFlightTimeout bounds a shared single-flight computation when
	// Options.FlightTimeout is zero.
	DefaultFlightTimeout = 30 * time.Second
)

// Options configures a Cache.
type Options struct {
	// TTL is the lifetime of an entry. Zero means DefaultTTL.
	TTL time.Duration

	// MaxEntries bounds the local cache; the least recently used entry is
	// evicted when full. Zero means DefaultMaxEntries.
	MaxEntries int

	// SingleFlight collapses concurrent misses for the same key into one
	// computation.
	SingleFlight bool

	// FlightTimeout bounds a shared computation, which is detached from the
	// cancellation of the caller that started it. Zero means
	// DefaultFlightTimeout.
	FlightTimeout time.Duration

	// Remote is an optional shared tier consulted on local misses.
	Remote Remote

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// Metrics is optional.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL result cache safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries *simplelru.LRU[Key, entry]

	ttl           time.Duration
	flightTimeout time.Duration
	clock         clockwork.Clock
	group         *singleflight.Group
	remote        Remote
	metrics       *Metrics
	logger        *slog.Logger
}

// New creates a Cache from opts.
func New(opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.FlightTimeout <= 0 {
		opts.FlightTimeout = DefaultFlightTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Cache{
		ttl:           opts.TTL,
		flightTimeout: opts.FlightTimeout,
		clock:         opts.Clock,
		remote:        opts.Remote,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	if opts.SingleFlight {
		c.group = &singleflight.Group{}
	}

	entries, err := simplelru.NewLRU[Key, entry](opts.MaxEntries, func(Key, entry) {
		if c.metrics != nil {
			c.metrics.IncEvictions()
		}
	})
	if err != nil {
		return nil, err
	}
	c.entries = entries

	return c, nil
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// get returns a live entry. An expired entry is removed and reported as a miss.
func (c *Cache) get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.entries.Remove(key)
		c.recordSize()
		return nil, false
	}
	return e.value, true
}

// set stores value so that it expires ttl from now.
func (c *Cache) set(key Key, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, entry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	})
	c.recordSize()
}

// recordSize must be called with mu held.
func (c *Cache) recordSize() {
	if c.metrics != nil {
		c.metrics.SetEntries(c.entries.Len())
	}
}

// Len returns the number of local entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge removes all local entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.recordSize()
}

// EvictExpired removes all expired local entries and returns the count evicted.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if ok && !now.Before(e.expiresAt) {
			c.entries.Remove(key)
			evicted++
		}
	}
	c.recordSize()
	return evicted
}

// StartEvictionTimer starts a background goroutine that periodically evicts
// expired entries. Returns a stop function that should be called to clean up
// the goroutine.
func (c *Cache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					c.logger.Debug("evicted expired cache entries",
						"count", evicted,
						"remaining", c.Len(),
					)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// GetOrCompute returns the cached value for key, or calls fn, caches its
// result for the cache TTL and returns it. Errors from fn are returned
// unchanged and nothing is cached. A nil cache always calls fn.
//
// With single-flight enabled, concurrent callers for the same key wait for
// one computation. It keeps the first caller's context values but not its
// cancellation, and is bounded by the flight timeout instead, so one caller
// going away never fails the others. A caller whose own context ends stops
// waiting and gets ctx.Err().
func GetOrCompute[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return fn(ctx)
	}

	if v, ok := lookupLocal[T](c, key); ok {
		return v, nil
	}

	load := func(ctx context.Context) (any, error) {
		// Another flight may have filled the entry while we queued.
		if v, ok := lookupLocal[T](c, key); ok {
			return v, nil
		}
		if v, ok := lookupRemote[T](ctx, c, key); ok {
			return v, nil
		}

		if c.metrics != nil {
			c.metrics.IncMiss(key.Op)
		}
		v, err := fn(ctx)
		if err != nil {
			if c.metrics != nil {
				c.metrics.IncComputeErrors(key.Op)
			}
			return nil, err
		}

		c.set(key, v, c.ttl)
		storeRemote(ctx, c, key, v)
		return v, nil
	}

	if c.group == nil {
		v, err := load(ctx)
		if err != nil {
			return zero, err
		}
		return v.(T), nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		return load(flightCtx)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// lookupLocal returns a live local entry of type T.
func lookupLocal[T any](c *Cache, key Key) (T, bool) {
	var zero T
	v, ok := c.get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	if c.metrics != nil {
		c.metrics.IncHit(key.Op, TierLocal)
	}
	return typed, true
}

// lookupRemote reads key from the remote tier and, on a hit, stores it
// locally for the remote entry's remaining lifetime. Remote failures are
// logged and reported as misses.
func lookupRemote[T any](ctx context.Context, c *Cache, key Key) (T, bool) {
	var zero T
	if c.remote == nil {
		return zero, false
	}

	data, ttl, found, err := c.remote.Get(ctx, key.String())
	if err != nil {
		c.logger.WarnContext(ctx, "remote cache read failed", "key", key.String(), "error", err)
		return zero, false
	}
	if !found {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.WarnContext(ctx, "failed to decode remote cache entry", "key", key.String(), "error", err)
		return zero, false
	}

	if ttl > c.ttl {
		ttl = c.ttl
	}
	c.set(key, v, ttl)
	if c.metrics != nil {
		c.metrics.IncHit(key.Op, TierRemote)
	}
	return v, true
}

// storeRemote writes a computed value to the remote tier. Failures are logged.
func storeRemote(ctx context.Context, c *Cache, key Key, v any) {
	if c.remote == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode cache entry for remote tier", "key", key.String(), "error", err)
		return
	}
	if err := c.remote.Set(ctx, key.String(), data, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "remote cache write failed", "key", key.String(), "error", err)
	}
}
