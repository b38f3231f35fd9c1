package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// otherRoute labels every path the service does not serve, keeping the
// label set bounded no matter what clients request.
const otherRoute = "other"

var knownRoutes = map[string]bool{
	"/tags/top":      true,
	"/tags/trending": true,
	"/health":        true,
	"/ready":         true,
	"/metrics":       true,
}

// normalizePath maps a request path to its route label.
func normalizePath(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if knownRoutes[path] {
		return path
	}
	return otherRoute
}

// HTTPMetrics records duration, count and response size per route.
// Health probes are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(rw.statusCode),
				time.Since(start).Seconds(),
				int64(rw.size),
			)
		})
	}
}
