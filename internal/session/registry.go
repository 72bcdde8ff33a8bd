// Package session keeps one isolated chat session per session ID.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/chat"
	"github.com/ashureev/shsh-chat/internal/observability"
	"github.com/ashureev/shsh-chat/internal/store"
)

// ErrSessionNotFound is returned when a session ID has no live session.
var ErrSessionNotFound = errors.New("session not found")

// ErrRegistryClosed is returned once the registry has been shut down.
var ErrRegistryClosed = errors.New("session registry closed")

// Session bundles a session's store and manager. The manager stays mounted
// until the session is closed.
type Session struct {
	ID        string
	Store     store.MessageStore
	Manager   *chat.Manager
	CreatedAt time.Time

	cancel   context.CancelFunc
	mu       sync.Mutex
	lastSeen time.Time
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) close() {
	s.cancel()
	s.Manager.Close()
	if err := s.Store.Close(); err != nil {
		slog.Debug("Failed to close session store", "session_id", s.ID, "error", err)
	}
}

// Registry creates sessions on first use and tears them down on Close.
type Registry struct {
	backend  string
	chatCfg  chat.Config
	observer observability.Observer
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver sets the observer passed to every session manager.
func WithObserver(obs observability.Observer) Option {
	return func(r *Registry) { r.observer = obs }
}

// WithClock overrides the clock used for last-seen tracking.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry whose sessions use the given store
// backend and manager configuration.
func NewRegistry(backend string, cfg chat.Config, opts ...Option) *Registry {
	r := &Registry{
		backend:  backend,
		chatCfg:  cfg,
		observer: observability.NoOpObserver{},
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for id, creating and mounting it if needed.
func (r *Registry) GetOrCreate(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	now := r.now()
	if s, ok := r.sessions[id]; ok {
		s.touch(now)
		return s, nil
	}

	st, err := store.New(r.backend)
	if err != nil {
		return nil, fmt.Errorf("create store for session %s: %w", id, err)
	}
	mgr, err := chat.NewManager(st, r.chatCfg,
		chat.WithObserver(r.observer),
		chat.WithLogger(slog.Default().With("session_id", id)),
	)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create manager for session %s: %w", id, err)
	}

	host, cancel := context.WithCancel(context.Background())
	mgr.Mount(host)

	s := &Session{
		ID:        id,
		Store:     st,
		Manager:   mgr,
		CreatedAt: now,
		cancel:    cancel,
		lastSeen:  now,
	}
	r.sessions[id] = s
	slog.Info("Chat session created", "session_id", id, "backend", r.backend)
	return s, nil
}

// Get returns an existing session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Close tears down one session. Its transport is released and pending
// replies are canceled.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	slog.Info("Chat session closed", "session_id", id)
	return nil
}

// closeIfIdle closes id only if it is still idle for longer than ttl, so a
// session used after the reaper's scan survives.
func (r *Registry) closeIfIdle(id string, ttl time.Duration) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || !s.LastSeen().Before(r.now().Add(-ttl)) {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	s.close()
	slog.Info("Chat session expired", "session_id", id)
	return true
}

// CloseAll tears down every session and rejects new ones.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.closed = true
	r.mu.Unlock()

	for id, s := range sessions {
		s.close()
		slog.Info("Chat session closed", "session_id", id)
	}
}

// IDs returns the live session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Expired returns the IDs of sessions idle for longer than ttl.
func (r *Registry) Expired(ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	var ids []string
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
