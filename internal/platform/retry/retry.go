// Package retry holds the two waiting strategies used at startup: classified
// retries with exponential backoff (Do) and fixed-interval readiness polling
// with an explicit outcome (Poll).
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // throttled, use longer backoff
)

type Policy struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	ThrottleBackoff time.Duration
	OnRetry         func(attempt int, err error, backoff time.Duration)
	Clock           clockwork.Clock
}

type Classify func(err error) Action
type Operation[T any] func(ctx context.Context) (T, error)

// AlwaysRetry treats every error as transient.
func AlwaysRetry(error) Action { return Retry }

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, fmt.Errorf("retry policy needs at least one attempt, got %d", p.MaxAttempts)
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}

		action := classify(err)
		if action == Stop {
			return zero, &PermanentError{Err: err}
		}
		if attempt == p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}
		if action == After {
			backoff = p.ThrottleBackoff
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-clock.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, classify, func(ctx context.Context) (struct{}, error) { return struct{}{}, op(ctx) })
	return err
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Outcome is how a Poll ended.
type Outcome int

const (
	Resolved Outcome = iota
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Clock       clockwork.Clock
}

// Condition reports whether the awaited state has been reached. A non-nil
// error is treated as "not yet" and is returned alongside TimedOut if the
// attempts run out.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond up to MaxAttempts times, Interval apart. The first
// evaluation happens immediately.
func Poll(ctx context.Context, p PollPolicy, cond Condition) (Outcome, error) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return Cancelled, ctx.Err()
		}

		done, err := cond(ctx)
		if done && err == nil {
			return Resolved, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-clock.After(p.Interval):
		case <-ctx.Done():
			return Cancelled, ctx.Err()
		}
	}
	return TimedOut, lastErr
}
