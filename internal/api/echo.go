package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/shsh-chat/internal/identity"
	"github.com/coder/websocket"
)

// EchoHandler is a development WebSocket endpoint that echoes every frame
// back to the sender. Pointing LIVE_URL at it exercises the live transport
// without an external server.
type EchoHandler struct {
	allowedOrigin string
	isDev         bool
}

// NewEchoHandler creates an echo endpoint.
func NewEchoHandler(allowedOrigin string, isDev bool) *EchoHandler {
	return &EchoHandler{allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *EchoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := identity.IPFromRequest(r)
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", ip)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "echo ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "ip", ip)
		}
	}()
	slog.Debug("Echo connection opened", "ip", ip)

	ctx := r.Context()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Echo connection closed by client", "ip", ip)
			} else {
				slog.Debug("Echo read error", "error", err, "ip", ip)
			}
			return
		}
		if err := ws.Write(ctx, typ, data); err != nil {
			slog.Debug("Echo write error", "error", err, "ip", ip)
			return
		}
	}
}

func (h *EchoHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
