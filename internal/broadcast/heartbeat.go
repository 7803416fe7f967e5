package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/platform/correlation"
	"github.com/jonboulle/clockwork"
)

const DefaultHeartbeatInterval = 30 * time.Second

type HeartbeatReport struct {
	Pinged  int
	Evicted int
}

// HeartbeatMonitor pings every connection once per interval. A connection
// that has maxMisses pings without a pong at tick time, or whose ping cannot
// be written, is evicted.
type HeartbeatMonitor struct {
	registry    *Registry
	broadcaster *Broadcaster
	clock       clockwork.Clock
	interval    time.Duration
	maxMisses   int
}

func NewHeartbeatMonitor(registry *Registry, broadcaster *Broadcaster, clock clockwork.Clock, interval time.Duration, maxMisses int) *HeartbeatMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatMonitor{
		registry:    registry,
		broadcaster: broadcaster,
		clock:       clock,
		interval:    interval,
		maxMisses:   max(maxMisses, 1),
	}
}

// Run ticks until ctx is cancelled.
func (h *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	slog.Info("Heartbeat monitor started", "interval", h.interval, "max_misses", h.maxMisses)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Heartbeat monitor stopped")
			return
		case <-ticker.Chan():
			h.Tick(correlation.WithID(ctx, correlation.NewID()))
		}
	}
}

// Tick runs one ping round and then tells the survivors how many clients
// are connected.
func (h *HeartbeatMonitor) Tick(ctx context.Context) HeartbeatReport {
	var report HeartbeatReport

	for _, conn := range h.registry.All() {
		if conn.pendingPings() >= h.maxMisses {
			h.evict(ctx, conn, "missed_pong")
			report.Evicted++
			continue
		}

		if err := conn.sendPing(); err != nil {
			slog.DebugContext(ctx, "Heartbeat ping failed", "connection_id", conn.ID.String(), "error", err)
			h.evict(ctx, conn, "send_failed")
			report.Evicted++
			continue
		}
		metrics.HeartbeatPingsSent.Inc()
		report.Pinged++
	}

	connected := h.registry.Size()
	h.broadcaster.BroadcastControl(TypeHeartbeat, map[string]any{"connectedClients": connected})

	if report.Evicted > 0 {
		slog.InfoContext(ctx, "Heartbeat evicted dead connections", "evicted", report.Evicted, "remaining", connected)
	}
	return report
}

func (h *HeartbeatMonitor) evict(ctx context.Context, conn *Connection, reason string) {
	if !conn.beginClose() {
		return
	}
	slog.InfoContext(ctx, "Evicting unresponsive client",
		"connection_id", conn.ID.String(),
		"reason", reason,
		"last_seen_at", conn.LastSeenAt(),
	)
	metrics.HeartbeatEvictions.WithLabelValues(reason).Inc()
	h.registry.Unregister(conn.ID)
}
