// Package server is the HTTP and WebSocket edge, built on Echo.
//
// Routes: run lifecycle (/api/run), price (/api/dbp-price), the /api/broadcast
// test hook, health checks with /metrics, and the /socket live feed.
// Handlers split by area: handlers_runs.go, handlers_price.go,
// handlers_broadcast.go, handlers_health.go, websocket.go.
package server
