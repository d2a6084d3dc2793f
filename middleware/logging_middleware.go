package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging records the duration and outcome of every call under the given operation name.
func Logging[Req, Resp any](logger *zap.Logger, operation string) Middleware[Req, Resp] {
	if logger == nil {
		logger = zap.L()
	}
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		return serviceFuncs[Req, Resp]{
			ready: next.Ready,
			call: func(ctx context.Context, req Req) <-chan Result[Resp] {
				start := time.Now()
				inner := next.Call(ctx, req)
				out := make(chan Result[Resp], 1)
				go func() {
					res := <-inner
					fields := []zap.Field{zap.String("operation", operation), zap.Duration("duration", time.Since(start))}
					if res.Err != nil {
						logger.Warn("call failed", append(fields, zap.Error(res.Err))...)
					} else {
						logger.Debug("call completed", fields...)
					}
					out <- res
				}()
				return out
			},
		}
	}
}
