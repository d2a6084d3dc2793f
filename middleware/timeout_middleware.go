package middleware

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is reported when a call's deadline elapses before its result is available.
var ErrTimeout = errors.New("request timed out")

// TimeoutService bounds how long a single call to the inner service may take.
// It holds no per-call state; every Call starts its own race.
type TimeoutService[Req, Resp any] struct {
	inner   Service[Req, Resp]
	timeout time.Duration
}

// NewTimeout wraps inner so that each call resolves within d.
func NewTimeout[Req, Resp any](inner Service[Req, Resp], d time.Duration) *TimeoutService[Req, Resp] {
	return &TimeoutService[Req, Resp]{inner: inner, timeout: d}
}

// Timeout is the Middleware form of NewTimeout.
func Timeout[Req, Resp any](d time.Duration) Middleware[Req, Resp] {
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		return NewTimeout(next, d)
	}
}

// Ready forwards to the inner service; the deadline covers the call only.
func (t *TimeoutService[Req, Resp]) Ready(ctx context.Context) error {
	return t.inner.Ready(ctx)
}

// Call invokes the inner service and starts the deadline timer together.
//
// The inner call gets a child context that is cancelled once the race resolves, so an
// abandoned operation is asked to stop. Whether it actually stops is up to the inner service.
func (t *TimeoutService[Req, Resp]) Call(ctx context.Context, req Req) <-chan Result[Resp] {
	innerCtx, cancel := context.WithCancel(ctx)
	race := &responseRace[Resp]{
		response: t.inner.Call(innerCtx, req),
		timer:    time.NewTimer(t.timeout),
	}

	out := make(chan Result[Resp], 1)
	go func() {
		defer cancel()
		out <- race.wait(ctx)
	}()
	return out
}

// responseRace is one in-flight response contending with one deadline timer.
type responseRace[T any] struct {
	response <-chan Result[T]
	timer    *time.Timer
}

// wait blocks until the response, the timer or the caller resolves the race.
//
// The response is always checked before the timer: when both are ready on the same
// wake-up, the response wins, so a call that completed is never reported as timed out.
func (r *responseRace[T]) wait(ctx context.Context) Result[T] {
	defer r.timer.Stop()

	select {
	case res := <-r.response:
		return res
	default:
	}

	select {
	case res := <-r.response:
		return res
	case <-r.timer.C:
		// select picks randomly among ready cases; re-check the response before giving up.
		select {
		case res := <-r.response:
			return res
		default:
			return Result[T]{Err: ErrTimeout}
		}
	case <-ctx.Done():
		return Result[T]{Err: ctx.Err()}
	}
}
