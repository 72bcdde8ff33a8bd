// Package store provides the per-session message log and its backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store closed")

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// MessageStore is the single source of truth for a session's message log and
// connection flag. Implementations must be safe for concurrent use, and every
// Append must be visible to readers before it returns.
type MessageStore interface {
	// Append adds a message to the end of the log. It never deduplicates or reorders.
	Append(ctx context.Context, msg domain.Message) error

	// Messages returns a copy of the log in insertion order.
	Messages(ctx context.Context) ([]domain.Message, error)

	// Len returns the number of messages in the log.
	Len(ctx context.Context) (int, error)

	// Clear empties the log atomically.
	Clear(ctx context.Context) error

	// SetConnected updates the connection flag read by consumers.
	SetConnected(connected bool)

	// IsConnected returns the connection flag.
	IsConnected() bool

	// Subscribe registers for change notifications. The returned func
	// unsubscribes and closes the channel.
	Subscribe() (<-chan Event, func())

	// Close releases the log. Subscribers' channels are closed.
	Close() error
}

// New creates a store for the given backend name.
func New(backend string) (MessageStore, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return NewSQLite()
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
