package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/shsh-chat/internal/chat"
	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/identity"
	"github.com/ashureev/shsh-chat/internal/middleware"
	"github.com/ashureev/shsh-chat/internal/session"
	"github.com/go-chi/chi/v5"
)

const maxMessageBodySize = 64 << 10

// ChatHandler exposes a session's connection manager over HTTP.
type ChatHandler struct {
	*Handler
	limiter *middleware.MapLimiter
}

// NewChatHandler creates chat handlers. A nil limiter disables send limiting.
func NewChatHandler(base *Handler, limiter *middleware.MapLimiter) *ChatHandler {
	return &ChatHandler{Handler: base, limiter: limiter}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/connect", h.Connect)
		r.Post("/disconnect", h.Disconnect)
		r.Get("/messages", h.Messages)
		r.With(middleware.RateLimit(h.limiter, sessionKey)).Post("/messages", h.Send)
		r.Delete("/messages", h.Clear)
		r.Delete("/session", h.CloseSession)
		r.Get("/stream", h.Stream)
	})
}

func sessionKey(r *http.Request) string {
	return identity.SessionIDFromContext(r.Context())
}

// statusResponse describes a session's connection.
type statusResponse struct {
	SessionID      string                 `json:"session_id"`
	State          domain.ConnectionState `json:"state"`
	Connected      bool                   `json:"connected"`
	Simulated      bool                   `json:"simulated"`
	MessageCount   int                    `json:"message_count"`
	PendingReplies int                    `json:"pending_replies"`
}

func (h *ChatHandler) status(r *http.Request, s *session.Session) (statusResponse, error) {
	n, err := s.Store.Len(r.Context())
	if err != nil {
		return statusResponse{}, err
	}
	state := s.Manager.State()
	return statusResponse{
		SessionID:      s.ID,
		State:          state,
		Connected:      state.IsConnected(),
		Simulated:      state.IsSimulated(),
		MessageCount:   n,
		PendingReplies: s.Manager.PendingReplies(),
	}, nil
}

func (h *ChatHandler) writeStatus(w http.ResponseWriter, r *http.Request, s *session.Session, code int) {
	resp, err := h.status(r, s)
	if err != nil {
		slog.Error("Failed to read session status", "error", err, "session_id", s.ID)
		Error(w, http.StatusInternalServerError, "failed to read session")
		return
	}
	JSON(w, code, resp)
}

// Status returns the session's connection state.
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeStatus(w, r, s, http.StatusOK)
}

// Connect opens a transport for the session.
func (h *ChatHandler) Connect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.Manager.Connect(r.Context()); err != nil {
		if errors.Is(err, chat.ErrNotMounted) {
			Error(w, http.StatusServiceUnavailable, "session closed")
			return
		}
		if errors.Is(err, chat.ErrConnectCanceled) {
			Error(w, http.StatusConflict, "connect canceled by disconnect")
			return
		}
		slog.Warn("Chat connect failed", "error", err, "session_id", s.ID)
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeStatus(w, r, s, http.StatusOK)
}

// Disconnect closes the session's transport.
func (h *ChatHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.Manager.Disconnect(r.Context()); err != nil {
		slog.Error("Chat disconnect failed", "error", err, "session_id", s.ID)
		Error(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}
	h.writeStatus(w, r, s, http.StatusOK)
}

// Messages returns the session's message log in insertion order.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	msgs, err := s.Store.Messages(r.Context())
	if err != nil {
		slog.Error("Failed to read messages", "error", err, "session_id", s.ID)
		Error(w, http.StatusInternalServerError, "failed to read messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// SendRequest is the body of POST /api/chat/messages.
type SendRequest struct {
	Text string `json:"text"`
}

// Send records a user message and routes it to the active transport.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodySize)
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := s.Manager.SendMessage(r.Context(), req.Text); err != nil {
		if errors.Is(err, chat.ErrNotMounted) {
			Error(w, http.StatusServiceUnavailable, "session closed")
			return
		}
		slog.Error("Chat send failed", "error", err, "session_id", s.ID)
		Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	h.writeStatus(w, r, s, http.StatusAccepted)
}

// Clear empties the session's message log.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.Store.Clear(r.Context()); err != nil {
		slog.Error("Failed to clear messages", "error", err, "session_id", s.ID)
		Error(w, http.StatusInternalServerError, "failed to clear messages")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// CloseSession tears the caller's session down.
func (h *ChatHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sid := identity.SessionIDFromContext(r.Context())
	if err := h.reg.Close(sid); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to close session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "closed", "session_id": sid})
}
