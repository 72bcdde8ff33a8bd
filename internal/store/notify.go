package store

import (
	"sync"
	"sync/atomic"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// EventType identifies a store change.
type EventType string

const (
	EventAppended   EventType = "appended"
	EventCleared    EventType = "cleared"
	EventConnection EventType = "connection"
)

// Event describes a single change to a store.
type Event struct {
	Type      EventType      `json:"type"`
	Message   domain.Message `json:"message,omitzero"`
	Connected bool           `json:"connected"`
}

const subscriberBuffer = 64

// notifier holds the connection flag and fans store events out to subscribers.
// Delivery is non-blocking: a full subscriber channel already holds pending
// events, so the consumer will still wake up and re-read the store.
type notifier struct {
	connected atomic.Bool

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func (n *notifier) SetConnected(connected bool) {
	if n.connected.Swap(connected) == connected {
		return
	}
	n.publish(Event{Type: EventConnection, Connected: connected})
}

func (n *notifier) IsConnected() bool {
	return n.connected.Load()
}

func (n *notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	if n.subs == nil {
		n.subs = make(map[int]chan Event)
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if sub, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(sub)
			}
		})
	}
}

func (n *notifier) publish(ev Event) {
	ev.Connected = n.connected.Load()

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (n *notifier) closeSubscribers() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
