package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

// newTestConnection wraps the server side of a fresh socket pair. The server
// side is read continuously so pong frames reach the pong handler.
func newTestConnection(t *testing.T, clock clockwork.Clock, opts ConnectionOptions) (*Connection, *ws.Conn) {
	t.Helper()
	server, client := newTestConnPair(t)

	conn := NewConnection(server, clock, opts)
	t.Cleanup(conn.close)

	go func() {
		for {
			if _, _, err := server.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return conn, client
}

// newStalledConnection returns an open connection whose writer never drains,
// so its queue fills after bufferSize messages.
func newStalledConnection(t *testing.T, clock clockwork.Clock, bufferSize int) *Connection {
	t.Helper()
	server, _ := newTestConnPair(t)

	conn := &Connection{
		ID:          uuid.New(),
		ConnectedAt: clock.Now(),
		clock:       clock,
		lastSeenAt:  clock.Now(),
		writer: &clientWriter{
			connection:   server,
			clock:        clock,
			writeTimeout: time.Second,
			sendChannel:  make(chan []byte, bufferSize),
			doneChannel:  make(chan struct{}),
		},
	}
	t.Cleanup(conn.close)
	return conn
}

// startPongResponder keeps reading on the client side so gorilla answers pings.
func startPongResponder(client *ws.Conn) <-chan []byte {
	received := make(chan []byte, 64)
	go func() {
		defer close(received)
		for {
			_, msg, err := client.ReadMessage()
			if err != nil {
				return
			}
			select {
			case received <- msg:
			default:
			}
		}
	}()
	return received
}

type wireMessage struct {
	Type  string         `json:"type"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func readWire(t *testing.T, client *ws.Conn) wireMessage {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := client.ReadMessage()
	require.NoError(t, err)

	var msg wireMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func assertNothingReceived(t *testing.T, client *ws.Conn) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, raw, err := client.ReadMessage()
	require.Error(t, err, "unexpected message: %s", raw)
}
