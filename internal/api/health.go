package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// ReadyChecker reports whether an optional dependency is usable.
type ReadyChecker interface {
	Ready() bool
}

// PendingCounter reports queued background writes.
type PendingCounter interface {
	Pending() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	*Handler
	renderer  ReadyChecker
	persister PendingCounter
}

// NewHealthHandler creates a new health handler. renderer and persister
// may be nil.
func NewHealthHandler(base *Handler, renderer ReadyChecker, persister PendingCounter) *HealthHandler {
	return &HealthHandler{Handler: base, renderer: renderer, persister: persister}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":   "healthy",
		"checks":   checks,
		"cards":    h.store.Len(),
		"sessions": h.sessions.Len(),
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.renderer == nil:
		checks["renderer"] = "placeholder"
	case h.renderer.Ready():
		checks["renderer"] = "ok"
	default:
		// Renders fail softly, so a lost renderer degrades but does not fail.
		checks["renderer"] = "unavailable"
		status["status"] = "degraded"
	}

	if h.persister != nil {
		status["pending_writes"] = h.persister.Pending()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
