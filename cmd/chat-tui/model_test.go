package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/shsh-chat/internal/chat"
	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/simulator"
	"github.com/ashureev/shsh-chat/internal/store"
	tea "github.com/charmbracelet/bubbletea"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	cfg := chat.DefaultConfig()
	cfg.Replies = simulator.Config{MinDelay: time.Hour, MaxDelay: time.Hour}
	mgr, err := chat.NewManager(store.NewMemory(), cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	mgr.Mount(context.Background())
	t.Cleanup(mgr.Close)

	m := newModel(mgr)
	t.Cleanup(m.unsubscribe)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(model)
}

// exec runs a submitted line to completion and feeds the result back in.
func exec(t *testing.T, m model, line string) model {
	t.Helper()
	cmd := m.submit(line)
	if cmd == nil {
		return m
	}
	msg := cmd()
	updated, _ := m.Update(msg)
	return updated.(model)
}

func TestDemoMessage(t *testing.T) {
	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{"", "Hello, World!", false},
		{"1", "Hello, World!", false},
		{"5", "Next.js + WebSocket = ❤️", false},
		{"0", "", true},
		{"6", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		got, err := demoMessage(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("demoMessage(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("demoMessage(%q): Expected %q, got %q", tt.arg, tt.want, got)
		}
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		state domain.ConnectionState
		want  string
	}{
		{domain.Disconnected(), "Disconnected"},
		{domain.Connecting(), "Connecting..."},
		{domain.Connected(domain.TransportSimulated), "Connected (Simulation Mode)"},
		{domain.Connected(domain.TransportLive), "Connected (Live)"},
	}

	for _, tt := range tests {
		if got := statusText(tt.state); got != tt.want {
			t.Errorf("statusText(%s): Expected %q, got %q", tt.state, tt.want, got)
		}
	}
}

func TestModel_ConnectAndSend(t *testing.T) {
	m := newTestModel(t)

	m = exec(t, m, "/connect")
	if !m.mgr.IsSimulated() {
		t.Fatalf("Expected simulated connection, got %s", m.mgr.State())
	}
	if m.busy {
		t.Error("Expected busy to clear after the action completes")
	}
	if m.statusErr {
		t.Errorf("Expected no error status, got %q", m.statusLine)
	}

	m = exec(t, m, "hi there")
	found := false
	for _, msg := range m.messages {
		if msg.Origin == domain.OriginUser && msg.Body == "hi there" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected the sent message in the timeline, got %+v", m.messages)
	}

	view := m.View()
	if !strings.Contains(view, "Connected (Simulation Mode)") {
		t.Errorf("Expected view to show simulation status, got %q", view)
	}
}

func TestModel_Demo(t *testing.T) {
	m := newTestModel(t)
	m = exec(t, m, "/connect")
	m = exec(t, m, "/demo 3")

	last := m.messages[len(m.messages)-1]
	if last.Body != "This is a WebSocket demo" {
		t.Errorf("Expected demo message, got %q", last.Body)
	}

	m = exec(t, m, "/demo 9")
	if !m.statusErr {
		t.Error("Expected an error status for an out-of-range demo")
	}
}

func TestModel_SendWhileDisconnected(t *testing.T) {
	m := newTestModel(t)
	m = exec(t, m, "anyone?")

	if len(m.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(m.messages))
	}
	if m.messages[0].Body != chat.MsgNotConnected {
		t.Errorf("Expected not-connected notice, got %q", m.messages[0].Body)
	}
}

func TestModel_ClearAndDisconnect(t *testing.T) {
	m := newTestModel(t)
	m = exec(t, m, "/connect")
	m = exec(t, m, "/clear")
	if len(m.messages) != 0 {
		t.Errorf("Expected empty timeline after clear, got %d", len(m.messages))
	}

	m = exec(t, m, "/disconnect")
	if m.mgr.IsConnected() {
		t.Error("Expected disconnected after /disconnect")
	}
	if !strings.Contains(m.View(), "Disconnected") {
		t.Error("Expected view to show Disconnected")
	}
}

func TestModel_UnknownCommand(t *testing.T) {
	m := newTestModel(t)
	if cmd := m.submit("/bogus"); cmd != nil {
		t.Error("Expected no command for unknown input")
	}
	if !m.statusErr || !strings.Contains(m.statusLine, "/bogus") {
		t.Errorf("Expected unknown command status, got %q", m.statusLine)
	}
	if cmd := m.submit("   "); cmd != nil {
		t.Error("Expected blank input to be ignored")
	}
}

func TestModel_StoreEventReloads(t *testing.T) {
	m := newTestModel(t)
	if err := m.mgr.Store().Append(context.Background(), domain.NewSystemMessage("external")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	updated, cmd := m.Update(storeEventMsg{event: store.Event{Type: store.EventAppended}})
	m = updated.(model)
	if len(m.messages) != 1 {
		t.Errorf("Expected 1 message after store event, got %d", len(m.messages))
	}
	if cmd == nil {
		t.Error("Expected the store subscription to be re-armed")
	}
}
