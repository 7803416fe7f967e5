package domain

import "time"

// Event is a single notification on a channel. It is built by the event bus,
// serialized once for fan-out and then dropped.
type Event struct {
	Channel   Channel
	Type      string
	Payload   any
	Timestamp time.Time
}

// Event types published by the run lifecycle and the price ticker.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventXPUpdate     = "xp_update"
	EventReplayUpdate = "replay_update"
	EventStatsUpdate  = "stats_update"
	EventPriceUpdate  = "price_update"
)

// Publisher accepts events for asynchronous fan-out. Implementations must not
// block on delivery.
type Publisher interface {
	Publish(channel Channel, eventType string, payload any) error
}
