package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/coder/websocket"
)

type recordingScheduler struct {
	mu       sync.Mutex
	triggers []domain.Message
}

func (r *recordingScheduler) Schedule(trigger domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
}

// echoServer echoes every frame back; closeAfter > 0 makes it drop the
// connection after that many frames.
func echoServer(t *testing.T, closeAfter int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.CloseNow() }()

		for n := 1; ; n++ {
			typ, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			if err := c.Write(r.Context(), typ, data); err != nil {
				return
			}
			if closeAfter > 0 && n >= closeAfter {
				_ = c.Close(websocket.StatusGoingAway, "bye")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"simulated", ModeSimulated, false},
		{" LIVE ", ModeLive, false},
		{"auto", ModeAuto, false},
		{"", ModeSimulated, false},
		{"carrier-pigeon", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownMode) {
				t.Errorf("ParseMode(%q): expected ErrUnknownMode, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestMode_Kinds(t *testing.T) {
	if k := ModeSimulated.Kinds(); len(k) != 1 || k[0] != domain.TransportSimulated {
		t.Errorf("simulated: got %v", k)
	}
	if k := ModeLive.Kinds(); len(k) != 1 || k[0] != domain.TransportLive {
		t.Errorf("live: got %v", k)
	}
	if k := ModeAuto.Kinds(); len(k) != 2 || k[0] != domain.TransportLive || k[1] != domain.TransportSimulated {
		t.Errorf("auto: got %v", k)
	}
}

func TestFactory(t *testing.T) {
	sched := &recordingScheduler{}
	f := NewFactory(Options{Replies: sched})

	sim, err := f(domain.TransportSimulated, Handlers{})
	if err != nil {
		t.Fatalf("Expected simulated transport, got %v", err)
	}
	if sim.Kind() != domain.TransportSimulated {
		t.Errorf("Expected simulated kind, got %q", sim.Kind())
	}

	if _, err := f(domain.TransportLive, Handlers{}); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("Expected ErrNoEndpoint, got %v", err)
	}
	if _, err := f("pigeon", Handlers{}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}

	live, err := NewFactory(Options{LiveURL: "ws://example.invalid"})(domain.TransportLive, Handlers{})
	if err != nil {
		t.Fatalf("Expected live transport, got %v", err)
	}
	if live.Kind() != domain.TransportLive {
		t.Errorf("Expected live kind, got %q", live.Kind())
	}
}

func TestSimulated_SendSchedulesReply(t *testing.T) {
	sched := &recordingScheduler{}
	tr := NewSimulated(sched)
	ctx := context.Background()

	msg := domain.NewUserMessage("hi")
	if err := tr.Send(ctx, msg); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen before Open, got %v", err)
	}

	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := tr.Send(ctx, msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(sched.triggers) != 1 || sched.triggers[0].ID != msg.ID {
		t.Errorf("Expected scheduled trigger %q, got %+v", msg.ID, sched.triggers)
	}

	_ = tr.Close()
	if err := tr.Send(ctx, msg); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen after Close, got %v", err)
	}
}

func TestLiveSocket_RoundTrip(t *testing.T) {
	srv := echoServer(t, 0)
	received := make(chan string, 4)
	closed := make(chan error, 1)

	tr := NewLiveSocket(wsURL(srv), time.Second, Handlers{
		OnReceive: func(body string) { received <- body },
		OnClosed:  func(err error) { closed <- err },
	})
	ctx := context.Background()
	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := tr.Send(ctx, domain.NewUserMessage("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case body := <-received:
		if body != "ping" {
			t.Errorf("Expected echo %q, got %q", "ping", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for echo")
	}

	if err := tr.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	select {
	case err := <-closed:
		t.Errorf("OnClosed must not fire on local close, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := tr.Send(ctx, domain.NewUserMessage("late")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen after Close, got %v", err)
	}
}

func TestLiveSocket_PeerCloseReportsFailure(t *testing.T) {
	srv := echoServer(t, 1)
	closed := make(chan error, 1)

	tr := NewLiveSocket(wsURL(srv), time.Second, Handlers{
		OnClosed: func(err error) { closed <- err },
	})
	ctx := context.Background()
	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = tr.Close() }()

	if err := tr.Send(ctx, domain.NewUserMessage("last")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case err := <-closed:
		if err == nil {
			t.Error("Expected a non-nil closure error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for OnClosed")
	}
}

func TestLiveSocket_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr := NewLiveSocket(wsURL(srv), time.Second, Handlers{})
	if err := tr.Open(context.Background()); err == nil {
		t.Fatal("Expected dial to fail against a non-websocket endpoint")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close on unopened transport should be a no-op, got %v", err)
	}
}
