package broadcast

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

type Health int

const (
	Alive Health = iota
	AwaitingPong
)

type ConnectionOptions struct {
	BufferSize     int
	WriteTimeout   time.Duration
	SubscribeRate  rate.Limit
	SubscribeBurst int
	RemoteAddr     string
	// OnWriteFailure is invoked from its own goroutine after a socket write fails.
	OnWriteFailure func(id uuid.UUID, err error)
}

// Connection is one live WebSocket client. A closed Connection is never
// reopened; a reconnecting client gets a new one.
type Connection struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	clock     clockwork.Clock
	writer    *clientWriter
	subscribe *rate.Limiter

	mu sync.RWMutex
	// nil means no filter was ever set: the connection receives every channel.
	subscriptions map[domain.Channel]struct{}
	lastSeenAt    time.Time

	state       atomic.Int32
	outstanding atomic.Int32
}

// NewConnection wraps an upgraded socket and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, clock clockwork.Clock, opts ConnectionOptions) *Connection {
	now := clock.Now()
	c := &Connection{
		ID:          uuid.New(),
		RemoteAddr:  opts.RemoteAddr,
		ConnectedAt: now,
		clock:       clock,
		lastSeenAt:  now,
	}
	if opts.SubscribeRate > 0 {
		c.subscribe = rate.NewLimiter(opts.SubscribeRate, max(opts.SubscribeBurst, 1))
	}

	onFailed := func(err error) {
		c.beginClose()
		if opts.OnWriteFailure != nil {
			opts.OnWriteFailure(c.ID, err)
		}
	}
	c.writer = newClientWriter(conn, clock, opts.BufferSize, opts.WriteTimeout, c.touch, onFailed)

	conn.SetPongHandler(func(string) error {
		c.outstanding.Store(0)
		c.touch()
		return nil
	})
	return c
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) Health() Health {
	if c.outstanding.Load() > 0 {
		return AwaitingPong
	}
	return Alive
}

func (c *Connection) LastSeenAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeenAt
}

// Subscriptions returns the current filter. A nil result means unfiltered.
func (c *Connection) Subscriptions() []domain.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subscriptions == nil {
		return nil
	}
	out := make([]domain.Channel, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// Matches reports whether an event on channel should reach this connection.
func (c *Connection) Matches(channel domain.Channel) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subscriptions == nil {
		return true
	}
	if _, ok := c.subscriptions[domain.ChannelAll]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

// AllowSubscribe applies the per-connection subscribe rate limit.
func (c *Connection) AllowSubscribe() bool {
	return c.subscribe == nil || c.subscribe.Allow()
}

// setSubscriptions replaces the filter and returns the accepted channels.
// An empty request clears the filter; unknown names are dropped.
func (c *Connection) setSubscriptions(channels []domain.Channel) []domain.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(channels) == 0 {
		c.subscriptions = nil
		return nil
	}

	set := make(map[domain.Channel]struct{}, len(channels))
	accepted := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if !ch.Valid() {
			continue
		}
		if _, dup := set[ch]; dup {
			continue
		}
		set[ch] = struct{}{}
		accepted = append(accepted, ch)
	}
	c.subscriptions = set
	return accepted
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeenAt = c.clock.Now()
	c.mu.Unlock()
}

// beginClose moves Open to Closing. Only the first caller wins.
func (c *Connection) beginClose() bool {
	return c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}

func (c *Connection) send(msg []byte) bool {
	if c.State() != StateOpen {
		return false
	}
	return c.writer.enqueue(msg)
}

// sendPing counts a ping as outstanding and then sends it. The count is raised
// first so a pong racing the write still clears it.
func (c *Connection) sendPing() error {
	c.outstanding.Add(1)
	if err := c.writer.ping(); err != nil {
		c.withdrawPing()
		return err
	}
	return nil
}

// withdrawPing undoes the count for a ping that never left. It never goes
// below zero, since a pong may already have reset the counter.
func (c *Connection) withdrawPing() {
	for {
		n := c.outstanding.Load()
		if n <= 0 || c.outstanding.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (c *Connection) pendingPings() int {
	return int(c.outstanding.Load())
}

// Close shuts down a connection that never made it into a registry.
// Registered connections are closed through Registry.Unregister.
func (c *Connection) Close() {
	c.close()
}

func (c *Connection) close() {
	c.beginClose()
	c.writer.stop()
	c.state.Store(int32(StateClosed))
}

func (c *Connection) closeGraceful(reason string) {
	c.beginClose()
	c.writer.stopGraceful(reason)
	c.state.Store(int32(StateClosed))
}
