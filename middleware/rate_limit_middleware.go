package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit gates readiness with a token bucket: Ready fails with ErrRateLimited
// when no token is available. It never queues work.
func RateLimit[Req, Resp any](r float64, burst int) Middleware[Req, Resp] {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		return serviceFuncs[Req, Resp]{
			ready: func(ctx context.Context) error {
				if !limiter.Allow() {
					return ErrRateLimited
				}
				return next.Ready(ctx)
			},
			call: next.Call,
		}
	}
}
