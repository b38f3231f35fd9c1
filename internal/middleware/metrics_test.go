package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	m.IncRateLimitRequests("/tags/top")
	m.IncRateLimitBlocked("/tags/top")
	m.IncRateLimitStoreErrors()
	m.ObserveHTTPRequest("GET", "/tags/top", "200", 0.01, 128)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		MetricRateLimitRequests,
		MetricRateLimitBlocked,
		MetricRateLimitStoreErrors,
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPResponseSizeBytes,
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}

	if err := NewMetrics().Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
