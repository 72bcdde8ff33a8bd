package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware_SessionID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "tab-1", "", "tab-1"},
		{"query", "", "tab-2", "tab-2"},
		{"header wins", "tab-1", "tab-2", "tab-1"},
		{"missing", "", "", DefaultSessionIDValue},
		{"invalid characters", "../etc/passwd", "", DefaultSessionIDValue},
		{"too long", strings.Repeat("a", 129), "", DefaultSessionIDValue},
		{"trimmed", "  tab-3  ", "", "tab-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = SessionIDFromContext(r.Context())
			}))

			target := "/api/chat/status"
			if tt.query != "" {
				target += "?session_id=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(SessionHeaderName, tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("Expected session %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSessionIDFromContext_Default(t *testing.T) {
	if got := SessionIDFromContext(context.Background()); got != DefaultSessionIDValue {
		t.Errorf("Expected %q, got %q", DefaultSessionIDValue, got)
	}
	if got := SessionIDFromContext(WithSessionID(context.Background(), "abc")); got != "abc" {
		t.Errorf("Expected abc, got %q", got)
	}
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	if got := IPFromRequest(req); got != "10.1.2.3" {
		t.Errorf("Expected 10.1.2.3, got %s", got)
	}
	req.RemoteAddr = "unix"
	if got := IPFromRequest(req); got != "unix" {
		t.Errorf("Expected raw address, got %s", got)
	}
}
