// Package chat owns the connection lifecycle of one chat session.
//
// A Manager routes user messages to the active transport, records every
// user and system message in the session's store, and presents the same
// interface whether the session talks to a live socket or to the local
// reply simulation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/observability"
	"github.com/ashureev/shsh-chat/internal/simulator"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/ashureev/shsh-chat/internal/transport"
)

var (
	// ErrNotMounted is returned when an operation needs a host that is not mounted.
	ErrNotMounted = errors.New("chat manager not mounted")
	// ErrConnectCanceled is returned by a Connect whose dial was abandoned by
	// Disconnect before it completed.
	ErrConnectCanceled = errors.New("connect canceled")
)

// Event types emitted by the manager.
const (
	EventConnect       observability.EventType = "chat.connect"
	EventConnectFailed observability.EventType = "chat.connect.failed"
	EventDisconnect    observability.EventType = "chat.disconnect"
	EventSend          observability.EventType = "chat.send"
	EventReceive       observability.EventType = "chat.receive"
	EventDeclined      observability.EventType = "chat.declined"
	EventTransportLost observability.EventType = "chat.transport.lost"
	EventTeardown      observability.EventType = "chat.teardown"
)

// System message texts.
const (
	MsgSimulationActivated = "🔄 Simulation mode activated (demo version)"
	MsgSimulationLocal     = "💡 Your messages will be simulated locally in this mode"
	MsgSimulatedClosed     = "❌ Simulated connection closed"
	MsgLiveClosed          = "❌ Connection closed"
	MsgNotConnected        = `❌ Error: WebSocket not connected. Click "Connect" first`

	msgLiveConnected  = "✅ Connected to %s"
	msgConnectFailed  = "❌ Connection failed: %s"
	msgConnectionLost = "❌ Connection lost: %v"
)

// Config controls transport selection and reply behavior.
type Config struct {
	Mode        transport.Mode
	LiveURL     string
	DialTimeout time.Duration
	Replies     simulator.Config

	// CancelPendingOnDisconnect drops scheduled simulated replies when the
	// session disconnects. When false they are still delivered afterwards.
	CancelPendingOnDisconnect bool
}

// DefaultConfig returns a simulated-mode configuration with the standard
// reply window.
func DefaultConfig() Config {
	return Config{
		Mode:                      transport.ModeSimulated,
		DialTimeout:               10 * time.Second,
		Replies:                   simulator.DefaultConfig(),
		CancelPendingOnDisconnect: true,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver sets the observer for lifecycle events. It is shared with the
// reply simulator.
func WithObserver(obs observability.Observer) Option {
	return func(m *Manager) { m.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithFactory replaces the transport factory.
func WithFactory(f transport.Factory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithSimulatorOptions passes extra options to the reply simulator.
func WithSimulatorOptions(opts ...simulator.Option) Option {
	return func(m *Manager) { m.simOpts = append(m.simOpts, opts...) }
}

// Manager is the connection state machine of one session:
// Disconnected -> Connecting -> Connected(kind) -> Disconnected.
// All operations serialize on a single mutex, except that Connect releases it
// while a transport opens so the state stays readable during a dial.
type Manager struct {
	store    store.MessageStore
	replies  *simulator.Simulator
	factory  transport.Factory
	cfg      Config
	observer observability.Observer
	logger   *slog.Logger
	simOpts  []simulator.Option

	mu       sync.Mutex
	state    domain.ConnectionState
	active   transport.Transport
	mounted  bool
	host     uint64 // incremented by every Mount
	stopHost func() bool
	opening  bool
	attempt  uint64 // identifies the Connect that set opening
}

// NewManager creates a disconnected, unmounted manager writing to st.
func NewManager(st store.MessageStore, cfg Config, opts ...Option) (*Manager, error) {
	if st == nil {
		return nil, fmt.Errorf("chat manager requires a message store")
	}
	if cfg.Mode == "" {
		cfg.Mode = transport.ModeSimulated
	}

	m := &Manager{
		store:    st,
		cfg:      cfg,
		observer: observability.NoOpObserver{},
		logger:   slog.Default(),
		state:    domain.Disconnected(),
	}
	for _, opt := range opts {
		opt(m)
	}

	simOpts := append([]simulator.Option{
		simulator.WithObserver(m.observer),
		simulator.WithLogger(m.logger),
	}, m.simOpts...)
	replies, err := simulator.New(st, cfg.Replies, simOpts...)
	if err != nil {
		return nil, fmt.Errorf("create reply simulator: %w", err)
	}
	m.replies = replies

	if m.factory == nil {
		m.factory = transport.NewFactory(transport.Options{
			LiveURL:     cfg.LiveURL,
			DialTimeout: cfg.DialTimeout,
			Replies:     replies,
		})
	}
	return m, nil
}

// Mount binds the manager to a host. When ctx is done the manager unmounts
// and releases its transport. Mounting again replaces the previous host.
func (m *Manager) Mount(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopHost != nil {
		m.stopHost()
	}
	m.host++
	host := m.host
	m.mounted = true
	m.stopHost = context.AfterFunc(ctx, func() { m.unmount(host) })
}

// Unmount tears the session down without touching the message log: the
// transport is closed, an in-flight Connect is abandoned and every pending
// reply is canceled.
func (m *Manager) Unmount() {
	m.unmount(0)
}

// unmount tears down when host is 0 or still the current mount. A host
// callback that fires after a newer Mount is ignored.
func (m *Manager) unmount(host uint64) {
	m.mu.Lock()
	if host != 0 && host != m.host {
		m.mu.Unlock()
		return
	}
	wasMounted := m.mounted
	m.mounted = false
	if m.stopHost != nil {
		m.stopHost()
		m.stopHost = nil
	}
	m.opening = false
	t := m.detachLocked()
	canceled := m.replies.CancelAll()
	m.mu.Unlock()

	if t == nil && !wasMounted && canceled == 0 {
		return
	}

	data := map[string]any{"canceled_replies": canceled}
	if t != nil {
		data["kind"] = string(t.Kind())
		m.closeTransport(t)
	}
	m.logger.Debug("Chat session torn down", "canceled_replies", canceled)
	m.emit(EventTeardown, observability.LevelInfo, data)
}

// Close unmounts the manager and stops the reply simulator for good.
func (m *Manager) Close() {
	m.Unmount()
	m.replies.Close()
}

// Connect opens a transport. It is a no-op while one is open or being
// opened. In auto mode the live socket is tried first and the simulation is
// the fallback. The manager's lock is not held while a transport opens.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if !m.mounted {
		m.declineLocked("connect")
		m.mu.Unlock()
		return ErrNotMounted
	}
	if m.active != nil || m.opening {
		m.mu.Unlock()
		return nil
	}
	m.opening = true
	m.attempt++
	attempt := m.attempt
	m.state = domain.Connecting()
	m.mu.Unlock()

	var errs []error
	for _, kind := range m.cfg.Mode.Kinds() {
		t, err := m.open(ctx, kind)
		if err != nil {
			m.logger.Warn("Transport unavailable", "kind", kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}

		m.mu.Lock()
		if err := m.abandonedLocked(attempt); err != nil {
			m.mu.Unlock()
			m.closeTransport(t)
			m.logger.Info("Chat connect abandoned", "kind", kind, "error", err)
			return err
		}
		m.opening = false
		m.active = t
		m.state = domain.Connected(kind)
		m.store.SetConnected(true)
		for _, text := range m.bannerFor(t) {
			m.appendSystemLocked(ctx, text)
		}
		m.mu.Unlock()

		m.logger.Info("Chat connected", "kind", kind)
		m.emit(EventConnect, observability.LevelInfo, map[string]any{"kind": string(kind)})
		return nil
	}

	reasons := make([]string, len(errs))
	for i, err := range errs {
		reasons[i] = err.Error()
	}
	reason := strings.Join(reasons, "; ")

	m.mu.Lock()
	if err := m.abandonedLocked(attempt); err != nil {
		m.mu.Unlock()
		return err
	}
	m.opening = false
	m.state = domain.Disconnected()
	m.appendSystemLocked(ctx, fmt.Sprintf(msgConnectFailed, reason))
	m.mu.Unlock()

	m.logger.Warn("Chat connect failed", "mode", m.cfg.Mode, "error", reason)
	m.emit(EventConnectFailed, observability.LevelWarning, map[string]any{"error": reason})
	return fmt.Errorf("connect: %w", errors.Join(errs...))
}

// abandonedLocked reports why the Connect identified by attempt may no
// longer commit its result, or nil if it still may.
func (m *Manager) abandonedLocked(attempt uint64) error {
	switch {
	case !m.mounted:
		return ErrNotMounted
	case !m.opening || m.attempt != attempt:
		return ErrConnectCanceled
	default:
		return nil
	}
}

func (m *Manager) open(ctx context.Context, kind domain.TransportKind) (transport.Transport, error) {
	var t transport.Transport
	handlers := transport.Handlers{
		OnReceive: func(body string) { m.handleReceive(t, body) },
		OnClosed:  func(err error) { m.handleTransportClosed(t, err) },
	}

	t, err := m.factory(kind, handlers)
	if err != nil {
		return nil, err
	}
	if err := t.Open(ctx); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

func (m *Manager) bannerFor(t transport.Transport) []string {
	if t.Kind() == domain.TransportSimulated {
		return []string{MsgSimulationActivated, MsgSimulationLocal}
	}
	endpoint := m.cfg.LiveURL
	if u, ok := t.(interface{ URL() string }); ok {
		endpoint = u.URL()
	}
	return []string{fmt.Sprintf(msgLiveConnected, endpoint)}
}

// Disconnect closes the active transport. While a Connect is still opening
// a transport, the attempt is abandoned and nothing is appended. It does
// nothing when the session is not connected.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.active == nil {
		if m.opening {
			m.opening = false
			m.state = domain.Disconnected()
		}
		m.mu.Unlock()
		return nil
	}

	t := m.detachLocked()
	kind := t.Kind()
	text := MsgLiveClosed
	if kind == domain.TransportSimulated {
		text = MsgSimulatedClosed
	}
	err := m.appendSystemLocked(ctx, text)
	canceled := 0
	if m.cfg.CancelPendingOnDisconnect {
		canceled = m.replies.CancelAll()
	}
	m.mu.Unlock()

	m.closeTransport(t)

	m.logger.Info("Chat disconnected", "kind", kind, "canceled_replies", canceled)
	m.emit(EventDisconnect, observability.LevelInfo, map[string]any{
		"kind":             string(kind),
		"canceled_replies": canceled,
	})
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// SendMessage records text as a user message and forwards it over the active
// transport. When not connected it records a system notice instead and
// returns nil.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	m.mu.Lock()

	if !m.mounted {
		m.declineLocked("send")
		m.mu.Unlock()
		return ErrNotMounted
	}

	if m.active == nil {
		err := m.appendSystemLocked(ctx, MsgNotConnected)
		m.mu.Unlock()
		return err
	}

	t := m.active
	msg := domain.NewUserMessage(text)
	if err := m.store.Append(ctx, msg); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("append user message: %w", err)
	}

	if err := t.Send(ctx, msg); err != nil {
		m.detachLocked()
		m.appendSystemLocked(ctx, fmt.Sprintf(msgConnectionLost, err))
		m.mu.Unlock()

		m.closeTransport(t)
		m.logger.Warn("Chat send failed", "kind", t.Kind(), "error", err)
		m.emit(EventTransportLost, observability.LevelWarning, map[string]any{
			"kind":  string(t.Kind()),
			"error": err.Error(),
		})
		return nil
	}
	m.mu.Unlock()

	m.emit(EventSend, observability.LevelVerbose, map[string]any{
		"kind":       string(t.Kind()),
		"message_id": msg.ID,
	})
	return nil
}

func (m *Manager) handleReceive(t transport.Transport, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t == nil || m.active != t {
		return
	}
	msg := domain.NewSystemMessage(body)
	if err := m.store.Append(context.Background(), msg); err != nil {
		m.logger.Warn("Failed to record inbound message", "error", err)
		return
	}
	m.emit(EventReceive, observability.LevelVerbose, map[string]any{
		"kind":       string(t.Kind()),
		"message_id": msg.ID,
	})
}

// handleTransportClosed runs on the transport's goroutine, so it must not
// call t.Close.
func (m *Manager) handleTransportClosed(t transport.Transport, cause error) {
	m.mu.Lock()
	if t == nil || m.active != t {
		m.mu.Unlock()
		return
	}
	m.detachLocked()
	m.appendSystemLocked(context.Background(), fmt.Sprintf(msgConnectionLost, cause))
	m.mu.Unlock()

	m.logger.Warn("Chat transport lost", "kind", t.Kind(), "error", cause)
	m.emit(EventTransportLost, observability.LevelWarning, map[string]any{
		"kind":  string(t.Kind()),
		"error": fmt.Sprint(cause),
	})
}

// detachLocked forgets the active transport and moves to Disconnected. The
// caller closes the returned transport after releasing m.mu.
func (m *Manager) detachLocked() transport.Transport {
	t := m.active
	m.active = nil
	m.state = domain.Disconnected()
	m.store.SetConnected(false)
	return t
}

func (m *Manager) closeTransport(t transport.Transport) {
	if err := t.Close(); err != nil {
		m.logger.Debug("Failed to close transport", "kind", t.Kind(), "error", err)
	}
}

func (m *Manager) appendSystemLocked(ctx context.Context, text string) error {
	if err := m.store.Append(ctx, domain.NewSystemMessage(text)); err != nil {
		m.logger.Warn("Failed to record system message", "error", err)
		return fmt.Errorf("append system message: %w", err)
	}
	return nil
}

func (m *Manager) declineLocked(op string) {
	m.logger.Info("Chat operation declined: no host mounted", "op", op)
	m.emit(EventDeclined, observability.LevelInfo, map[string]any{"op": op})
}

func (m *Manager) emit(typ observability.EventType, level observability.Level, data map[string]any) {
	m.observer.OnEvent(context.Background(), observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "chat",
		Data:      data,
	})
}

// IsConnected reports whether a transport is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsConnected()
}

// IsSimulated reports whether the open transport is the simulation.
func (m *Manager) IsSimulated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsSimulated()
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mounted reports whether a host is mounted.
func (m *Manager) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Store returns the session's message store.
func (m *Manager) Store() store.MessageStore {
	return m.store
}

// PendingReplies returns the number of simulated replies not yet delivered.
func (m *Manager) PendingReplies() int {
	return m.replies.Pending()
}
