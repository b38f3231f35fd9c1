package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// Check states reported in HealthResponse.Checks.
const (
	CheckOK            = "ok"
	CheckError         = "error"
	CheckNotConfigured = "not_configured"
)

// readyTimeout bounds all dependency checks of one readiness probe.
const readyTimeout = 5 * time.Second

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints.
type HealthHandlers struct {
	dbChecker    HealthChecker
	redisChecker HealthChecker
	clock        clockwork.Clock
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	// DBChecker is required for readiness; a nil checker fails the probe.
	DBChecker HealthChecker

	// RedisChecker is optional; nil reports "not_configured".
	RedisChecker HealthChecker

	Clock clockwork.Clock
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthHandlers{
		dbChecker:    config.DBChecker,
		redisChecker: config.RedisChecker,
		clock:        clock,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": CheckOK},
		Timestamp: h.now(),
	})
}

// Ready handles GET /ready (readiness probe).
// Returns 503 when the database or a configured Redis is unreachable.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make(map[string]string, 2)
	healthy := true

	if h.dbChecker == nil {
		checks["database"] = CheckNotConfigured
		healthy = false
	} else {
		checks["database"] = runCheck(ctx, "database", h.dbChecker)
		healthy = checks["database"] == CheckOK
	}

	if h.redisChecker == nil {
		checks["redis"] = CheckNotConfigured
	} else {
		checks["redis"] = runCheck(ctx, "redis", h.redisChecker)
		healthy = healthy && checks["redis"] == CheckOK
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	WriteJSON(w, r.Context(), statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now(),
	})
}

func runCheck(ctx context.Context, name string, checker HealthChecker) string {
	if err := checker.HealthCheck(ctx); err != nil {
		slog.WarnContext(ctx, "health check failed", "check", name, "error", err)
		return CheckError
	}
	return CheckOK
}

func (h *HealthHandlers) now() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}
