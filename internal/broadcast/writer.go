package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultBufferSize   = 16
)

var errWriterClosed = errors.New("writer closed")

// clientWriter owns every data write to one socket. Pings go through
// WriteControl, which gorilla allows concurrently with this goroutine.
type clientWriter struct {
	connection   *websocket.Conn
	clock        clockwork.Clock
	writeTimeout time.Duration
	sendChannel  chan []byte
	doneChannel  chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	onWritten    func()
	onFailed     func(error)
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, bufferSize int, writeTimeout time.Duration, onWritten func(), onFailed func(error)) *clientWriter {
	if bufferSize < 1 {
		bufferSize = defaultBufferSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	cw := &clientWriter{
		connection:   connection,
		clock:        clock,
		writeTimeout: writeTimeout,
		sendChannel:  make(chan []byte, bufferSize),
		doneChannel:  make(chan struct{}),
		onWritten:    onWritten,
		onFailed:     onFailed,
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	var writeErr error
	defer func() {
		cw.wg.Done()
		// Reported after wg.Done so the callback may stop() this writer.
		if writeErr != nil && cw.onFailed != nil {
			go cw.onFailed(writeErr)
		}
	}()

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				select {
				case <-cw.doneChannel:
				default:
					writeErr = err
				}
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())
			if cw.onWritten != nil {
				cw.onWritten()
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// enqueue hands msg to the writer without blocking. It reports false when the
// buffer is full or the writer is shutting down.
func (cw *clientWriter) enqueue(msg []byte) bool {
	select {
	case <-cw.doneChannel:
		return false
	default:
	}

	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) ping() error {
	select {
	case <-cw.doneChannel:
		return errWriterClosed
	default:
	}
	if err := cw.connection.WriteControl(websocket.PingMessage, nil, cw.deadline()); err != nil {
		metrics.WebSocketPingFailures.Inc()
		return err
	}
	return nil
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// The run goroutine must be gone before we write the close frame.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = cw.connection.WriteControl(websocket.CloseMessage, closeMsg, cw.deadline())
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.deadline())
}

// Socket deadlines are compared against wall time by the net package, so
// they never come from the injected clock.
func (cw *clientWriter) deadline() time.Time {
	return time.Now().Add(cw.writeTimeout)
}
