package store

import (
	"context"
	"slices"
	"sync"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// MemoryStore implements MessageStore with an in-memory slice.
type MemoryStore struct {
	notifier

	mu       sync.RWMutex
	messages []domain.Message
	closed   bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Append adds a message to the end of the log.
func (s *MemoryStore) Append(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.messages = append(s.messages, msg)
	// Published under the write lock so subscribers observe log order.
	s.publish(Event{Type: EventAppended, Message: msg})
	s.mu.Unlock()
	return nil
}

// Messages returns a defensive copy of the log.
func (s *MemoryStore) Messages(_ context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(s.messages), nil
}

// Len returns the number of messages in the log.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.messages), nil
}

// Clear empties the log.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.messages = nil
	s.publish(Event{Type: EventCleared})
	s.mu.Unlock()
	return nil
}

// Close drops the log and closes all subscriptions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.messages = nil
	s.mu.Unlock()

	s.closeSubscribers()
	return nil
}
