package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Event types the PrometheusObserver turns into gauges. The emitting packages
// define the same strings; they are repeated here to avoid an import cycle.
const (
	eventConnect        EventType = "chat.connect"
	eventDisconnect     EventType = "chat.disconnect"
	eventTransportLost  EventType = "chat.transport.lost"
	eventTeardown       EventType = "chat.teardown"
	eventReplyScheduled EventType = "chat.reply.scheduled"
	eventReplyDelivered EventType = "chat.reply.delivered"
	eventReplyCanceled  EventType = "chat.reply.canceled"
	eventReplyFailed    EventType = "chat.reply.failed"
)

// PrometheusObserver counts events and tracks live gauges.
type PrometheusObserver struct {
	events         *prometheus.CounterVec
	pendingReplies prometheus.Gauge
	connected      *prometheus.GaugeVec
}

// NewPrometheusObserver creates and registers the chat metrics on reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "events_total",
			Help:      "Chat lifecycle events by type and transport kind.",
		}, []string{"type", "kind"}),
		pendingReplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "pending_replies",
			Help:      "Simulated replies scheduled but not yet delivered or canceled.",
		}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "connected_sessions",
			Help:      "Sessions with an open transport, by transport kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{o.events, o.pendingReplies, o.connected} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register chat metric: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	kind, _ := event.Data["kind"].(string)
	o.events.WithLabelValues(string(event.Type), kind).Inc()

	switch event.Type {
	case eventConnect:
		o.connected.WithLabelValues(kind).Inc()
	case eventDisconnect, eventTransportLost, eventTeardown:
		if kind != "" {
			o.connected.WithLabelValues(kind).Dec()
		}
	case eventReplyScheduled:
		o.pendingReplies.Inc()
	case eventReplyDelivered, eventReplyCanceled, eventReplyFailed:
		o.pendingReplies.Dec()
	}
}

// PendingReplies exposes the pending-replies gauge.
func (o *PrometheusObserver) PendingReplies() prometheus.Gauge {
	return o.pendingReplies
}

// Connected exposes the connected-sessions gauge for a transport kind.
func (o *PrometheusObserver) Connected(kind string) prometheus.Gauge {
	return o.connected.WithLabelValues(kind)
}

// Events exposes the event counter for a type and transport kind.
func (o *PrometheusObserver) Events(typ EventType, kind string) prometheus.Counter {
	return o.events.WithLabelValues(string(typ), kind)
}
