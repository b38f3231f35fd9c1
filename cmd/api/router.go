package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/trendtags/internal/api"
	"github.com/onnwee/trendtags/internal/middleware"
)

// routerDeps is everything newRouter wires into the mux.
type routerDeps struct {
	Tags           *api.TagHandlers
	Health         *api.HealthHandlers
	Metrics        *middleware.Metrics
	Gatherer       prometheus.Gatherer
	RateLimitStore middleware.RateLimitStore
	RateLimit      middleware.RateLimitConfig
	ServiceName    string
	Logger         *slog.Logger
}

// newRouter builds the HTTP handler:
// RequestID -> Tracing -> Logging -> HTTPMetrics -> mux, with the /tags
// routes additionally rate limited per client IP.
func newRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	limit := middleware.RateLimiter(d.RateLimitStore, d.RateLimit, middleware.IPKeyFunc(), d.Metrics, d.Logger)
	mux.Handle("/tags/top", limit(http.HandlerFunc(d.Tags.Top)))
	mux.Handle("/tags/trending", limit(http.HandlerFunc(d.Tags.Trending)))

	mux.HandleFunc("/health", d.Health.Health)
	mux.HandleFunc("/ready", d.Health.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
	})

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(d.Metrics)(handler)
	handler = middleware.Logging(d.Logger)(handler)
	handler = middleware.Tracing(d.ServiceName)(handler)
	return middleware.RequestID(handler)
}
