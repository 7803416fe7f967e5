package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Failed Redis dial attempts",
		},
	)

	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Broadcaster Metrics
var (
	// BroadcasterConnectedClients tracks registered WebSocket connections
	BroadcasterConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_connected_clients_total",
			Help: "Number of WebSocket connections currently registered",
		},
	)

	BroadcasterSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_slow_clients_evicted_total",
			Help: "Total number of slow WebSocket clients evicted due to buffer full",
		},
	)

	// BroadcasterDeliveries counts per-connection delivery attempts by result (succeeded/failed)
	BroadcasterDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcaster_deliveries_total",
			Help: "Per-connection event deliveries by channel and result",
		},
		[]string{"channel", "result"},
	)

	BroadcasterDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcaster_dispatch_duration_seconds",
			Help:    "Time to encode an event and hand it to every matching connection",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// Event Bus Metrics
var (
	BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Events accepted by the bus by channel",
		},
		[]string{"channel"},
	)

	// BusEventsDropped counts events rejected because the dispatch queue was full
	BusEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_dropped_total",
			Help: "Events dropped because the bus queue was full",
		},
		[]string{"channel"},
	)

	BusQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bus_queue_depth",
			Help: "Current bus queue depth",
		},
	)

	BusPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_panics_total",
			Help: "Total bus dispatch panic recoveries",
		},
	)

	BusStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_stop_timeouts_total",
			Help: "Bus stops that exceeded timeout",
		},
	)
)

// Heartbeat Metrics
var (
	HeartbeatPingsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_pings_sent_total",
			Help: "Total heartbeat pings sent",
		},
	)

	// HeartbeatEvictions counts connections evicted by the heartbeat by reason (missed_pong/send_failed)
	HeartbeatEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_evictions_total",
			Help: "Connections evicted by the heartbeat monitor by reason",
		},
		[]string{"reason"},
	)
)

// WebSocket Metrics
var (
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result",
		},
		[]string{"result"},
	)

	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write a single message to a WebSocket client",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "Lifetime of WebSocket connections",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket ping writes",
		},
	)

	// WebSocketConnectionsRejected tracks connections rejected by the limiter by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "WebSocket connections rejected by reason",
		},
		[]string{"reason"},
	)

	WebSocketConnectionCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connection_capacity_percent",
			Help: "Current connections as a percentage of the global limit",
		},
	)

	WebSocketUniqueIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_unique_ips",
			Help: "Distinct client IPs with open connections",
		},
	)

	// WebSocketClientMessages counts inbound client messages by type (subscribe/ping/unknown/malformed/throttled)
	WebSocketClientMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_client_messages_total",
			Help: "Inbound client messages by type",
		},
		[]string{"type"},
	)
)

// Run Lifecycle Metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runs_total",
			Help: "Run lifecycle transitions by status",
		},
		[]string{"status"},
	)

	RunsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runs_rejected_total",
			Help: "Run requests rejected by reason",
		},
		[]string{"reason"},
	)

	RunCPEarned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "run_cp_earned",
			Help:    "Final CP per completed run",
			Buckets: []float64{0, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		},
	)

	ReplayFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_frames_total",
			Help: "Replay frames recorded",
		},
	)
)

// Price Metrics
var (
	DBPPrice = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbp_price",
			Help: "Current simulated DBP price",
		},
	)

	PriceTickFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "price_tick_failures_total",
			Help: "Price ticks that failed to persist",
		},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query latency by query name
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Database errors by query name",
		},
		[]string{"query"},
	)
)

// Build Information Metrics
var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information (always 1)",
		},
		[]string{"version", "commit", "go_version"},
	)
)
