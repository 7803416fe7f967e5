package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/broadcast"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	defaultMaxMessageSize = 4096
	ackMessage            = "Connected to HamBaller live updates"
)

type SocketOptions struct {
	BufferSize     int
	WriteTimeout   time.Duration
	SubscribeRate  rate.Limit
	SubscribeBurst int
	MaxMessageSize int64
}

// SocketHandler upgrades GET /socket requests and runs the read side of each
// connection. Writes go through the connection's own writer goroutine.
type SocketHandler struct {
	registry    *broadcast.Registry
	broadcaster *broadcast.Broadcaster
	limits      *ConnectionLimits
	clock       clockwork.Clock
	upgrader    websocket.Upgrader
	opts        SocketOptions
}

func NewSocketHandler(registry *broadcast.Registry, broadcaster *broadcast.Broadcaster, limits *ConnectionLimits, clock clockwork.Clock, allowedOrigins []string, opts SocketOptions) *SocketHandler {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	return &SocketHandler{
		registry:    registry,
		broadcaster: broadcaster,
		limits:      limits,
		clock:       clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(allowedOrigins),
		},
		opts: opts,
	}
}

// Handle blocks for the lifetime of the connection.
func (h *SocketHandler) Handle(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := h.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("WebSocket connection rejected", "ip", ip, "reason", reason)
		status := http.StatusTooManyRequests
		if reason == LimitReasonGlobal {
			status = http.StatusServiceUnavailable
		}
		return echo.NewHTTPError(status, "connection limit reached")
	}
	defer h.limits.Release(ip)

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		metrics.WebSocketConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		slog.Debug("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}
	ws.SetReadLimit(h.opts.MaxMessageSize)
	metrics.WebSocketConnectionsTotal.WithLabelValues("accepted").Inc()

	conn := broadcast.NewConnection(ws, h.clock, broadcast.ConnectionOptions{
		BufferSize:     h.opts.BufferSize,
		WriteTimeout:   h.opts.WriteTimeout,
		SubscribeRate:  h.opts.SubscribeRate,
		SubscribeBurst: h.opts.SubscribeBurst,
		RemoteAddr:     ip,
		OnWriteFailure: h.onWriteFailure,
	})
	ctx := c.Request().Context()

	// The ack is queued before registration so no event can overtake it.
	h.broadcaster.SendControl(conn, broadcast.TypeConnectionAck, map[string]any{
		"message":           ackMessage,
		"availableChannels": domain.AvailableChannels(),
		"connectionId":      conn.ID.String(),
	})
	if !h.registry.Register(conn) {
		slog.DebugContext(ctx, "Connection closed before registration", "connection_id", conn.ID.String())
		conn.Close()
		return nil
	}
	defer h.registry.Unregister(conn.ID)
	slog.InfoContext(ctx, "Client connected", "connection_id", conn.ID.String(), "ip", ip)

	h.readLoop(ctx, ws, conn)
	slog.InfoContext(ctx, "Client disconnected", "connection_id", conn.ID.String())
	return nil
}

func (h *SocketHandler) onWriteFailure(id uuid.UUID, err error) {
	slog.Debug("WebSocket write failed, evicting", "connection_id", id.String(), "error", err)
	h.registry.Unregister(id)
}

// readLoop runs until the client goes away or the socket is closed from the
// server side. Reading also drives the pong handler used by heartbeats.
func (h *SocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn *broadcast.Connection) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				slog.DebugContext(ctx, "WebSocket read ended", "connection_id", conn.ID.String(), "error", err)
			}
			return
		}
		h.handleClientMessage(ctx, conn, raw)
	}
}

func (h *SocketHandler) handleClientMessage(ctx context.Context, conn *broadcast.Connection, raw []byte) {
	msg, err := broadcast.ParseClientMessage(raw)
	if err != nil {
		metrics.WebSocketClientMessages.WithLabelValues("malformed").Inc()
		slog.DebugContext(ctx, "Ignoring client message", "connection_id", conn.ID.String(), "error", err)
		return
	}

	switch msg.Type {
	case broadcast.ClientSubscribe:
		if !conn.AllowSubscribe() {
			metrics.WebSocketClientMessages.WithLabelValues("throttled").Inc()
			slog.DebugContext(ctx, "Subscribe throttled", "connection_id", conn.ID.String())
			return
		}
		metrics.WebSocketClientMessages.WithLabelValues("subscribe").Inc()

		accepted, err := h.registry.SetSubscriptions(conn.ID, msg.ChannelsOf())
		if err != nil {
			slog.DebugContext(ctx, "Subscribe for unregistered connection", "connection_id", conn.ID.String(), "error", err)
			return
		}
		if accepted == nil {
			accepted = []domain.Channel{domain.ChannelAll}
		}
		h.broadcaster.SendControl(conn, broadcast.TypeSubscribed, map[string]any{"channels": accepted})

	case broadcast.ClientPing:
		metrics.WebSocketClientMessages.WithLabelValues("ping").Inc()
		h.broadcaster.SendControl(conn, broadcast.TypePong, nil)

	default:
		metrics.WebSocketClientMessages.WithLabelValues("unknown").Inc()
		slog.DebugContext(ctx, "Unknown client message type", "connection_id", conn.ID.String(), "type", msg.Type)
	}
}
