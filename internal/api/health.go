package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is the database dependency of the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gauges reports live counters included in the health response.
type Gauges interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db       Pinger
	sessions Gauges
	timeout  time.Duration
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(db Pinger, sessions Gauges) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	if h.sessions != nil {
		status["active_sessions"] = h.sessions.Len()
	}

	JSON(w, statusCode, status)
}
