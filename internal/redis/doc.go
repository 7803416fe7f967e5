// Package redis implements the shared live-state stores on Redis.
//
// ActiveRunTracker enforces one in-progress run per player across server
// instances, StatsStore keeps the global run totals and PriceHistory keeps the
// rolling DBP price series. Every client carries a metrics hook and a circuit
// breaker hook.
package redis
