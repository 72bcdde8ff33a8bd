// Package api provides HTTP handlers for the chat API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/shsh-chat/internal/identity"
	"github.com/ashureev/shsh-chat/internal/session"
)

// Handler provides common handler utilities.
type Handler struct {
	reg *session.Registry
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(reg *session.Registry) *Handler {
	return &Handler{reg: reg}
}

// session resolves the caller's chat session, creating it on first use.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sid := identity.SessionIDFromContext(r.Context())
	s, err := h.reg.GetOrCreate(sid)
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "session unavailable")
		return nil, false
	}
	return s, true
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
