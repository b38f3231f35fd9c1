package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricCacheHitsTotal          = "tags_cache_hits_total"
	MetricCacheMissesTotal        = "tags_cache_misses_total"
	MetricCacheComputeErrorsTotal = "tags_cache_compute_errors_total"
	MetricCacheEvictionsTotal     = "tags_cache_evictions_total"
	MetricCacheEntries            = "tags_cache_entries"
)

// Cache tiers used as the hit label.
const (
	TierLocal  = "local"
	TierRemote = "remote"
)

// Metrics contains Prometheus metrics for the result cache.
// All operations are thread-safe.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	computeErrors *prometheus.CounterVec
	evictions     prometheus.Counter
	entries       prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheHitsTotal,
				Help: "Total number of cache hits by operation and tier",
			},
			[]string{"op", "tier"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheMissesTotal,
				Help: "Total number of cache misses that triggered a computation, by operation",
			},
			[]string{"op"},
		),
		computeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheComputeErrorsTotal,
				Help: "Total number of failed computations (never cached), by operation",
			},
			[]string{"op"},
		),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricCacheEvictionsTotal,
				Help: "Total number of entries removed by expiry or capacity",
			},
		),
		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricCacheEntries,
				Help: "Current number of entries in the local cache, including expired ones not yet swept",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncHit increments the hit counter for op on the given tier.
func (m *Metrics) IncHit(op, tier string) {
	m.hits.WithLabelValues(op, tier).Inc()
}

// IncMiss increments the miss counter for op.
func (m *Metrics) IncMiss(op string) {
	m.misses.WithLabelValues(op).Inc()
}

// IncComputeErrors increments the compute error counter for op.
func (m *Metrics) IncComputeErrors(op string) {
	m.computeErrors.WithLabelValues(op).Inc()
}

// IncEvictions increments the eviction counter.
func (m *Metrics) IncEvictions() {
	m.evictions.Inc()
}

// SetEntries records the current local cache size.
func (m *Metrics) SetEntries(n int) {
	m.entries.Set(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.hits,
		m.misses,
		m.computeErrors,
		m.evictions,
		m.entries,
	}
}
