package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("explicit origin gets credentials", func(t *testing.T) {
		h := CORS([]string{"http://localhost:3000"})(ok)
		req := httptest.NewRequest(http.MethodGet, "/api/chat/status", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Expected echoed origin, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Expected credentials allowed, got %q", got)
		}
		if w.Code != http.StatusNoContent {
			t.Errorf("Expected handler to run, got %d", w.Code)
		}
	})

	t.Run("wildcard has no credentials", func(t *testing.T) {
		h := CORS([]string{"*"})(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Errorf("Expected no credentials for wildcard match, got %q", got)
		}
	})

	t.Run("unknown origin", func(t *testing.T) {
		h := CORS([]string{"http://localhost:3000"})(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://other.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Expected no CORS headers, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		h := CORS([]string{"*"})(ok)
		req := httptest.NewRequest(http.MethodOptions, "/api/chat/messages", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200 for preflight, got %d", w.Code)
		}
	})
}

func TestMapLimiter_Allow(t *testing.T) {
	l := NewMapLimiter(1, 2, time.Minute)
	now := time.Now()

	if !l.Allow("a", now) || !l.Allow("a", now) {
		t.Fatal("Expected burst of 2 to be allowed")
	}
	if l.Allow("a", now) {
		t.Error("Expected third request in the same instant to be limited")
	}
	if !l.Allow("b", now) {
		t.Error("Expected other keys to have their own bucket")
	}
	if !l.Allow("a", now.Add(time.Second)) {
		t.Error("Expected a token after one second")
	}
	if !l.Allow("", now) {
		t.Error("Expected empty key to bypass limiting")
	}
}

func TestMapLimiter_Nil(t *testing.T) {
	l := NewMapLimiter(0, 10, 0)
	if l != nil {
		t.Fatal("Expected nil limiter for zero rps")
	}
	for i := 0; i < 100; i++ {
		if !l.Allow("a", time.Now()) {
			t.Fatal("Expected nil limiter to allow everything")
		}
	}
}

func TestMapLimiter_EvictsIdleKeys(t *testing.T) {
	l := NewMapLimiter(1000, 1000, time.Minute)
	start := time.Now()

	l.Allow("idle", start)
	later := start.Add(2 * time.Minute)
	for i := 0; i < evictEvery; i++ {
		l.Allow("busy", later)
	}

	if l.Len() != 1 {
		t.Errorf("Expected idle key to be evicted, %d keys tracked", l.Len())
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	l := NewMapLimiter(1, 1, time.Minute)
	h := RateLimit(l, func(r *http.Request) string { return r.Header.Get("X-Key") })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }),
	)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", nil)
		req.Header.Set("X-Key", "tab-1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusAccepted {
		t.Errorf("Expected first request accepted, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", code)
	}
}
