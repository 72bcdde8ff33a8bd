// Package transport abstracts how chat messages leave and enter a session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
)

var (
	// ErrNotOpen is returned by Send on a transport that is not open.
	ErrNotOpen = errors.New("transport not open")
	// ErrUnknownMode is returned when a transport mode name is not recognized.
	ErrUnknownMode = errors.New("unknown transport mode")
	// ErrUnknownKind is returned when a factory cannot build a transport kind.
	ErrUnknownKind = errors.New("unknown transport kind")
	// ErrNoEndpoint is returned when the live transport has no URL configured.
	ErrNoEndpoint = errors.New("live endpoint not configured")
)

// Transport is one way of carrying messages for a session.
type Transport interface {
	// Kind reports which variant this transport is.
	Kind() domain.TransportKind

	// Open establishes the transport. It must be called once before Send.
	Open(ctx context.Context) error

	// Send forwards an outbound user message.
	Send(ctx context.Context, msg domain.Message) error

	// Close releases the transport. Handlers.OnClosed is not invoked for a
	// locally requested close.
	Close() error
}

// Handlers receive inbound traffic and unexpected closure from a transport.
// Both may be called from a transport-owned goroutine.
type Handlers struct {
	OnReceive func(body string)
	OnClosed  func(err error)
}

func (h Handlers) receive(body string) {
	if h.OnReceive != nil {
		h.OnReceive(body)
	}
}

func (h Handlers) closed(err error) {
	if h.OnClosed != nil {
		h.OnClosed(err)
	}
}

// Mode selects which transport kinds Connect tries, in order.
type Mode string

const (
	// ModeSimulated always uses the in-process simulation.
	ModeSimulated Mode = "simulated"
	// ModeLive only uses the live socket.
	ModeLive Mode = "live"
	// ModeAuto tries the live socket first and falls back to the simulation.
	ModeAuto Mode = "auto"
)

// ParseMode converts a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSimulated, ModeLive, ModeAuto:
		return m, nil
	case "":
		return ModeSimulated, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Kinds returns the transport kinds to attempt for this mode, in order.
func (m Mode) Kinds() []domain.TransportKind {
	switch m {
	case ModeLive:
		return []domain.TransportKind{domain.TransportLive}
	case ModeAuto:
		return []domain.TransportKind{domain.TransportLive, domain.TransportSimulated}
	default:
		return []domain.TransportKind{domain.TransportSimulated}
	}
}

// Scheduler receives user messages sent over the simulated transport.
type Scheduler interface {
	Schedule(trigger domain.Message)
}

// Factory builds a transport of the requested kind.
type Factory func(kind domain.TransportKind, h Handlers) (Transport, error)

// Options configure the default factory.
type Options struct {
	LiveURL     string
	DialTimeout time.Duration
	Replies     Scheduler
}

// NewFactory returns a Factory that builds live sockets and simulated
// transports from opts.
func NewFactory(opts Options) Factory {
	return func(kind domain.TransportKind, h Handlers) (Transport, error) {
		switch kind {
		case domain.TransportSimulated:
			if opts.Replies == nil {
				return nil, fmt.Errorf("simulated transport requires a reply scheduler")
			}
			return NewSimulated(opts.Replies), nil
		case domain.TransportLive:
			if opts.LiveURL == "" {
				return nil, ErrNoEndpoint
			}
			return NewLiveSocket(opts.LiveURL, opts.DialTimeout, h), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
	}
}
