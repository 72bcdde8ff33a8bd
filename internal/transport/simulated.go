package transport

import (
	"context"
	"sync/atomic"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// Simulated stands in for a socket. Nothing leaves the process; every sent
// message is handed to a reply scheduler instead.
type Simulated struct {
	replies Scheduler
	open    atomic.Bool
}

// NewSimulated creates a simulated transport feeding replies.
func NewSimulated(replies Scheduler) *Simulated {
	return &Simulated{replies: replies}
}

func (s *Simulated) Kind() domain.TransportKind {
	return domain.TransportSimulated
}

// Open never fails.
func (s *Simulated) Open(_ context.Context) error {
	s.open.Store(true)
	return nil
}

// Send schedules the synthetic reply for msg.
func (s *Simulated) Send(_ context.Context, msg domain.Message) error {
	if !s.open.Load() {
		return ErrNotOpen
	}
	s.replies.Schedule(msg)
	return nil
}

func (s *Simulated) Close() error {
	s.open.Store(false)
	return nil
}
