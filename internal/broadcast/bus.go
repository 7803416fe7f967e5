package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/jonboulle/clockwork"
)

const (
	defaultQueueSize = 256
	stopTimeout      = 10 * time.Second
	commandTimeout   = 5 * time.Second
)

var (
	ErrBusFull    = errors.New("event bus queue full")
	ErrBusStopped = errors.New("event bus stopped")
)

// Dispatcher delivers one event. *Broadcaster is the production implementation.
type Dispatcher interface {
	Dispatch(event domain.Event) DeliveryReport
}

// busCmd is the command interface for the Bus actor.
type busCmd interface{ isBusCmd() }

type baseBusCmd struct{}

func (baseBusCmd) isBusCmd() {}

type publishCmd struct {
	baseBusCmd
	event domain.Event
}

type flushCmd struct {
	baseBusCmd
	reply chan struct{}
}

type stopCmd struct {
	baseBusCmd
}

// Bus decouples producers from delivery. Publish only enqueues; a single
// goroutine dispatches in FIFO order, so one producer's sequential publishes
// reach the broadcaster in the order they were made.
type Bus struct {
	cmdCh       chan busCmd
	clock       clockwork.Clock
	dispatcher  Dispatcher
	done        chan struct{}
	stopOnce    sync.Once
	stopped     atomic.Bool
	stopTimeout time.Duration
}

func NewBus(dispatcher Dispatcher, clock clockwork.Clock, queueSize int) *Bus {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	b := &Bus{
		// One slot is reserved for the stop command.
		cmdCh:       make(chan busCmd, queueSize+1),
		clock:       clock,
		dispatcher:  dispatcher,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go b.run()
	return b
}

// Publish validates and enqueues an event without waiting for delivery.
// Publishing on "all" or an unknown channel is rejected.
func (b *Bus) Publish(channel domain.Channel, eventType string, payload any) error {
	if !channel.Publishable() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidChannel, channel)
	}
	if b.stopped.Load() {
		return ErrBusStopped
	}

	event := domain.Event{
		Channel:   channel,
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.clock.Now(),
	}

	if len(b.cmdCh) >= cap(b.cmdCh)-1 {
		return b.drop(event)
	}
	select {
	case b.cmdCh <- publishCmd{event: event}:
		metrics.BusEventsPublished.WithLabelValues(string(channel)).Inc()
		return nil
	default:
		return b.drop(event)
	}
}

func (b *Bus) drop(event domain.Event) error {
	metrics.BusEventsDropped.WithLabelValues(string(event.Channel)).Inc()
	slog.Warn("Event bus queue full, dropping event",
		"channel", string(event.Channel),
		"type", event.Type,
		"capacity", cap(b.cmdCh)-1,
	)
	return ErrBusFull
}

// Flush blocks until every event published before the call has been
// dispatched, or the command timeout passes.
func (b *Bus) Flush() error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	reply := make(chan struct{})
	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case b.cmdCh <- flushCmd{reply: reply}:
	case <-timer.Chan():
		return fmt.Errorf("flush command timed out after %v", commandTimeout)
	}

	select {
	case <-reply:
		return nil
	case <-b.done:
		return ErrBusStopped
	case <-timer.Chan():
		return fmt.Errorf("flush command timed out after %v", commandTimeout)
	}
}

// Stop dispatches everything already queued and then exits the actor.
// Blocks until the goroutine has exited or the stop timeout is reached.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		b.cmdCh <- stopCmd{}

		timeout := b.clock.NewTimer(b.stopTimeout)
		defer timeout.Stop()

		select {
		case <-b.done:
			slog.Info("Event bus stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Event bus stop timeout exceeded", "timeout", b.stopTimeout, "queued", len(b.cmdCh))
			metrics.BusStopTimeoutsTotal.Inc()
		}
	})
}

func (b *Bus) run() {
	defer close(b.done)

	depthTicker := b.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(b.cmdCh)
			metrics.BusQueueDepth.Set(float64(depth))
			if depth > cap(b.cmdCh)*4/5 {
				slog.Warn("Event bus queue near capacity", "depth", depth, "capacity", cap(b.cmdCh))
			}

		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case publishCmd:
				b.dispatch(c.event)
			case flushCmd:
				close(c.reply)
			case stopCmd:
				return
			default:
				slog.Warn("Event bus received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

// dispatch isolates a panicking dispatcher so one bad event cannot stop the bus.
func (b *Bus) dispatch(event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event bus dispatch panic recovered", "panic", r, "channel", string(event.Channel), "type", event.Type)
			metrics.BusPanicsTotal.Inc()
		}
	}()
	b.dispatcher.Dispatch(event)
}
