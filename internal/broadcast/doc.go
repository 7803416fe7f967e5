// Package broadcast is the live-update hub: the connection registry, the
// event bus actor, the fan-out broadcaster and the heartbeat monitor.
//
// Producers hand events to the Bus, which dispatches them one at a time from a
// single goroutine. The Broadcaster serializes each event once and queues the
// bytes on per-connection writer goroutines, so a slow or dead client only
// ever costs its own connection.
package broadcast
