package broadcast

import (
	"log/slog"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// DeliveryReport summarises one fan-out. It is for logs and metrics only and
// never flows back to the publisher.
type DeliveryReport struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Broadcaster fans serialized events out to matching connections. It holds
// no state of its own and is safe for concurrent Dispatch calls.
type Broadcaster struct {
	registry *Registry
	clock    clockwork.Clock
}

func NewBroadcaster(registry *Registry, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{registry: registry, clock: clock}
}

// Dispatch encodes event once and queues the bytes on every matching
// connection. A connection whose queue is full is evicted; the rest are
// unaffected.
func (b *Broadcaster) Dispatch(event domain.Event) DeliveryReport {
	start := b.clock.Now()
	defer func() {
		metrics.BroadcasterDispatchDuration.Observe(b.clock.Since(start).Seconds())
	}()

	targets := b.registry.Matching(event.Channel)
	if len(targets) == 0 {
		return DeliveryReport{}
	}

	data, err := EncodeEvent(event)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "channel", string(event.Channel), "type", event.Type, "error", err)
		return DeliveryReport{}
	}

	report := b.fanOut(targets, data)

	channel := string(event.Channel)
	metrics.BroadcasterDeliveries.WithLabelValues(channel, "succeeded").Add(float64(report.Succeeded))
	metrics.BroadcasterDeliveries.WithLabelValues(channel, "failed").Add(float64(report.Failed))
	slog.Debug("Event dispatched",
		"channel", channel,
		"type", event.Type,
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report
}

// SendControl writes a control message to a single connection.
func (b *Broadcaster) SendControl(conn *Connection, msgType string, payload any) bool {
	data, err := EncodeControl(msgType, payload, b.clock.Now())
	if err != nil {
		slog.Error("Failed to marshal control message", "type", msgType, "error", err)
		return false
	}
	return b.fanOut([]*Connection{conn}, data).Succeeded == 1
}

// BroadcastControl writes a control message to every open connection.
func (b *Broadcaster) BroadcastControl(msgType string, payload any) DeliveryReport {
	targets := b.registry.All()
	if len(targets) == 0 {
		return DeliveryReport{}
	}
	data, err := EncodeControl(msgType, payload, b.clock.Now())
	if err != nil {
		slog.Error("Failed to marshal control message", "type", msgType, "error", err)
		return DeliveryReport{}
	}
	return b.fanOut(targets, data)
}

func (b *Broadcaster) fanOut(targets []*Connection, data []byte) DeliveryReport {
	report := DeliveryReport{Attempted: len(targets)}

	var slow []*Connection
	for _, conn := range targets {
		if conn.send(data) {
			report.Succeeded++
			continue
		}
		report.Failed++
		slow = append(slow, conn)
	}

	for _, conn := range slow {
		if !conn.beginClose() {
			// Already closing through another path.
			continue
		}
		slog.Warn("Disconnecting slow client", "connection_id", conn.ID.String())
		metrics.BroadcasterSlowClientsEvicted.Inc()
		b.registry.Unregister(conn.ID)
	}
	return report
}
