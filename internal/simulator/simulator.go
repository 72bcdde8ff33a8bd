// Package simulator synthesizes delayed system replies for the simulated transport.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/observability"
)

const (
	DefaultMinDelay = 500 * time.Millisecond
	DefaultMaxDelay = 2000 * time.Millisecond
)

// Event types emitted by the simulator.
const (
	EventReplyScheduled observability.EventType = "chat.reply.scheduled"
	EventReplyDelivered observability.EventType = "chat.reply.delivered"
	EventReplyCanceled  observability.EventType = "chat.reply.canceled"
	EventReplyFailed    observability.EventType = "chat.reply.failed"
)

// replyTemplates are the canned reply bodies; each embeds the trigger text once.
var replyTemplates = [...]string{
	"🤖 Auto-reply: Received \"%s\"",
	"🎯 Simulation: Message \"%s\" processed",
	"🔄 Echo (demo): %s",
	"✨ Bot: Interesting message \"%s\"!",
	"📨 Automatic response to: %s",
}

// Appender is the capability the simulator needs to deliver replies.
type Appender interface {
	Append(ctx context.Context, msg domain.Message) error
}

// Config controls reply timing.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultConfig returns the standard [500ms, 2000ms) reply window.
func DefaultConfig() Config {
	return Config{
		MinDelay: DefaultMinDelay,
		MaxDelay: DefaultMaxDelay,
	}
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand replaces the random source, mainly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// WithObserver sets the observer notified about reply lifecycle events.
func WithObserver(obs observability.Observer) Option {
	return func(s *Simulator) { s.observer = obs }
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// pendingReply is one scheduled reply. Several may share a trigger ID.
type pendingReply struct {
	timer *time.Timer
}

// Simulator schedules exactly one reply per trigger message. Pending replies
// are timers keyed by the trigger's message ID and can be canceled.
type Simulator struct {
	sink     Appender
	cfg      Config
	observer observability.Observer
	logger   *slog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	pending map[string][]*pendingReply
	count   int
	closed  bool
}

// New creates a simulator delivering replies to sink.
func New(sink Appender, cfg Config, opts ...Option) (*Simulator, error) {
	if sink == nil {
		return nil, fmt.Errorf("simulator requires a reply sink")
	}
	if cfg.MinDelay < 0 || cfg.MaxDelay <= cfg.MinDelay {
		return nil, fmt.Errorf("invalid reply window [%s, %s)", cfg.MinDelay, cfg.MaxDelay)
	}

	s := &Simulator{
		sink:     sink,
		cfg:      cfg,
		observer: observability.NoOpObserver{},
		logger:   slog.Default(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		pending:  make(map[string][]*pendingReply),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule arranges a single system reply to trigger after a random delay.
// Scheduling the same trigger ID twice replaces nothing; both replies fire.
func (s *Simulator) Schedule(trigger domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	delay := s.nextDelayLocked()
	body := s.replyLocked(trigger.Body)
	id := trigger.ID

	// The timer callback takes s.mu, so it cannot run before r.timer is set
	// and r is registered below.
	r := &pendingReply{}
	r.timer = time.AfterFunc(delay, func() { s.deliver(id, r, body) })
	s.pending[id] = append(s.pending[id], r)
	s.count++

	s.emit(EventReplyScheduled, map[string]any{
		"trigger_id": trigger.ID,
		"delay_ms":   delay.Milliseconds(),
	})
}

func (s *Simulator) deliver(key string, r *pendingReply, body string) {
	s.mu.Lock()
	if !s.removeLocked(key, r) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	reply := domain.NewSystemMessage(body)
	if err := s.sink.Append(context.Background(), reply); err != nil {
		s.logger.Warn("Failed to deliver simulated reply", "trigger_id", key, "error", err)
		s.emit(EventReplyFailed, map[string]any{"trigger_id": key, "error": err.Error()})
		return
	}
	s.emit(EventReplyDelivered, map[string]any{
		"trigger_id": key,
		"reply_id":   reply.ID,
	})
}

// removeLocked drops r from the registry. It reports false when r was
// already delivered or canceled.
func (s *Simulator) removeLocked(key string, r *pendingReply) bool {
	replies := s.pending[key]
	for i, p := range replies {
		if p != r {
			continue
		}
		replies = append(replies[:i], replies[i+1:]...)
		if len(replies) == 0 {
			delete(s.pending, key)
		} else {
			s.pending[key] = replies
		}
		s.count--
		return true
	}
	return false
}

// Cancel stops every pending reply for a trigger ID, including replies to a
// trigger that was scheduled more than once. It reports whether any reply
// was pending.
func (s *Simulator) Cancel(triggerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	replies, ok := s.pending[triggerID]
	if !ok {
		return false
	}
	for _, r := range replies {
		r.timer.Stop()
		s.emit(EventReplyCanceled, map[string]any{"trigger_id": triggerID})
	}
	delete(s.pending, triggerID)
	s.count -= len(replies)
	return true
}

// CancelAll stops every pending reply and returns how many were canceled.
func (s *Simulator) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelAllLocked()
}

func (s *Simulator) cancelAllLocked() int {
	n := s.count
	for id, replies := range s.pending {
		for _, r := range replies {
			r.timer.Stop()
			s.emit(EventReplyCanceled, map[string]any{"trigger_id": id})
		}
		delete(s.pending, id)
	}
	s.count = 0
	return n
}

// Pending returns the number of scheduled replies not yet delivered.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close cancels all pending replies and rejects further scheduling.
func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancelAllLocked()
}

// nextDelayLocked draws uniformly from [MinDelay, MaxDelay).
func (s *Simulator) nextDelayLocked() time.Duration {
	span := int64(s.cfg.MaxDelay - s.cfg.MinDelay)
	return s.cfg.MinDelay + time.Duration(s.rng.Int64N(span))
}

func (s *Simulator) replyLocked(text string) string {
	tmpl := replyTemplates[s.rng.IntN(len(replyTemplates))]
	return fmt.Sprintf(tmpl, text)
}

func (s *Simulator) emit(typ observability.EventType, data map[string]any) {
	s.observer.OnEvent(context.Background(), observability.Event{
		Type:      typ,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "simulator",
		Data:      data,
	})
}
