package broadcast

import (
	"log/slog"
	"sync"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/google/uuid"
)

// Registry is the set of live connections. Lookups share a read lock so
// fan-out never waits on other readers.
type Registry struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[uuid.UUID]*Connection)}
}

// Register adds an open connection. Registering the same ID twice is a no-op.
// It reports whether the connection was added.
func (r *Registry) Register(conn *Connection) bool {
	if conn.State() != StateOpen {
		return false
	}

	r.mu.Lock()
	if _, exists := r.connections[conn.ID]; exists {
		r.mu.Unlock()
		return false
	}
	r.connections[conn.ID] = conn
	size := len(r.connections)
	r.mu.Unlock()

	metrics.BroadcasterConnectedClients.Set(float64(size))
	slog.Debug("Client registered", "connection_id", conn.ID.String(), "total_clients", size)
	return true
}

// Unregister removes and closes the connection whatever its state.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	conn, exists := r.connections[id]
	if exists {
		delete(r.connections, id)
	}
	size := len(r.connections)
	r.mu.Unlock()

	if !exists {
		return
	}

	// Closing the socket can wait on the writer goroutine; keep it outside the lock.
	conn.close()
	metrics.BroadcasterConnectedClients.Set(float64(size))
	metrics.WebSocketConnectionDuration.Observe(conn.clock.Since(conn.ConnectedAt).Seconds())
	slog.Debug("Client unregistered", "connection_id", id.String(), "remaining_clients", size)
}

// SetSubscriptions replaces the channel filter of a registered connection and
// returns the channels that were accepted.
func (r *Registry) SetSubscriptions(id uuid.UUID, channels []domain.Channel) ([]domain.Channel, error) {
	r.mu.RLock()
	conn, exists := r.connections[id]
	r.mu.RUnlock()

	if !exists {
		return nil, domain.ErrUnknownConnection
	}
	return conn.setSubscriptions(channels), nil
}

func (r *Registry) Get(id uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

// Matching returns the open connections that should receive an event on
// channel. Order is unspecified.
func (r *Registry) Matching(channel domain.Channel) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		if conn.State() == StateOpen && conn.Matches(channel) {
			out = append(out, conn)
		}
	}
	return out
}

// All returns every open connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		if conn.State() == StateOpen {
			out = append(out, conn)
		}
	}
	return out
}

// Size counts open connections.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conn := range r.connections {
		if conn.State() == StateOpen {
			n++
		}
	}
	return n
}

// CloseAll sends every connection a normal-closure frame with reason and
// empties the registry.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.connections))
	for id, conn := range r.connections {
		conns = append(conns, conn)
		delete(r.connections, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.closeGraceful(reason)
		}()
	}
	wg.Wait()

	metrics.BroadcasterConnectedClients.Set(0)
	return len(conns)
}
