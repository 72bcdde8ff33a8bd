package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/coder/websocket"
)

const (
	defaultDialTimeout = 10 * time.Second
	closeWaitTimeout   = 5 * time.Second
)

// LiveSocket carries messages over a WebSocket. Outbound messages are sent as
// raw text frames; every inbound data frame is reported through
// Handlers.OnReceive.
type LiveSocket struct {
	url         string
	dialTimeout time.Duration
	handlers    Handlers

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	closing atomic.Bool
}

// NewLiveSocket creates an unopened live transport for url.
func NewLiveSocket(url string, dialTimeout time.Duration, h Handlers) *LiveSocket {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &LiveSocket{
		url:         url,
		dialTimeout: dialTimeout,
		handlers:    h,
	}
}

func (l *LiveSocket) Kind() domain.TransportKind {
	return domain.TransportLive
}

// URL returns the endpoint this transport dials.
func (l *LiveSocket) URL() string {
	return l.url
}

// Open dials the endpoint and starts the read loop.
func (l *LiveSocket) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, l.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.url, err)
	}

	readCtx, readCancel := context.WithCancel(context.Background())
	l.conn = conn
	l.cancel = readCancel
	l.done = make(chan struct{})

	go l.readLoop(readCtx, conn, l.done)
	slog.Debug("Live transport opened", "url", l.url)
	return nil
}

func (l *LiveSocket) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if l.closing.Load() {
				return
			}
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Live transport closed by peer", "url", l.url, "status", websocket.CloseStatus(err))
			} else {
				slog.Warn("Live transport read error", "url", l.url, "error", err)
			}
			// Release the connection here so a later Close does not wait on
			// this goroutine, which may still be inside the handler.
			l.mu.Lock()
			if l.conn == conn {
				l.conn = nil
				l.cancel()
			}
			l.mu.Unlock()
			_ = conn.CloseNow()

			l.handlers.closed(err)
			return
		}
		l.handlers.receive(string(data))
	}
}

// Send writes the raw message body as a text frame.
func (l *LiveSocket) Send(ctx context.Context, msg domain.Message) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	if conn == nil || l.closing.Load() {
		return ErrNotOpen
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg.Body)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close performs the close handshake and waits for the read loop to exit.
func (l *LiveSocket) Close() error {
	l.mu.Lock()
	conn, cancel, done := l.conn, l.cancel, l.done
	l.conn = nil
	if conn != nil {
		l.closing.Store(true)
	}
	l.mu.Unlock()

	if conn == nil {
		return nil
	}

	if closeErr := conn.Close(websocket.StatusNormalClosure, "client disconnect"); closeErr != nil {
		slog.Debug("Failed to close websocket cleanly", "url", l.url, "error", closeErr)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(closeWaitTimeout):
		slog.Warn("Live transport read loop did not exit", "url", l.url)
	}
	return nil
}
