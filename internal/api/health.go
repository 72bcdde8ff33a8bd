package api

import (
	"net/http"

	"github.com/ashureev/shsh-chat/internal/session"
	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	reg     *session.Registry
	backend string
	mode    string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(reg *session.Registry, backend, mode string) *HealthHandler {
	return &HealthHandler{reg: reg, backend: backend, mode: mode}
}

// Health reports the API status and how sessions are configured.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"sessions":       h.reg.Len(),
		"store_backend":  h.backend,
		"transport_mode": h.mode,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
