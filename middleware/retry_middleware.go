package middleware

import (
	"context"
	"errors"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Retry re-issues calls that failed with a timeout or a refused connection,
// sleeping baseDelay * 2^attempt between attempts. Readiness is re-checked before each retry.
func Retry[Req, Resp any](maxRetries int, baseDelay time.Duration) Middleware[Req, Resp] {
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		return serviceFuncs[Req, Resp]{
			ready: next.Ready,
			call: func(ctx context.Context, req Req) <-chan Result[Resp] {
				out := make(chan Result[Resp], 1)
				go func() {
					out <- retryLoop(ctx, next, req, maxRetries, baseDelay)
				}()
				return out
			},
		}
	}
}

func retryLoop[Req, Resp any](ctx context.Context, next Service[Req, Resp], req Req, maxRetries int, baseDelay time.Duration) Result[Resp] {
	res := await(ctx, next.Call(ctx, req))
	for i := 0; i < maxRetries; i++ {
		if res.Err == nil || !retryable(res.Err) {
			return res
		}
		zap.L().Info("retrying call", zap.Int("attempt", i+1), zap.Error(res.Err))

		backoff := time.NewTimer(baseDelay * time.Duration(1<<i))
		select {
		case <-backoff.C:
		case <-ctx.Done():
			backoff.Stop()
			return Result[Resp]{Err: ctx.Err()}
		}

		if err := next.Ready(ctx); err != nil {
			return Result[Resp]{Err: err}
		}
		res = await(ctx, next.Call(ctx, req))
	}
	return res
}

func retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, syscall.ECONNREFUSED)
}

func await[T any](ctx context.Context, future <-chan Result[T]) Result[T] {
	select {
	case r := <-future:
		return r
	case <-ctx.Done():
		return Result[T]{Err: ctx.Err()}
	}
}
