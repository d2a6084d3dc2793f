package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_duplex_calls_total",
			Help: "Total number of decorated service calls by outcome",
		},
		[]string{"operation", "status"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_duplex_call_duration_seconds",
			Help:    "Duration of decorated service calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(callsTotal)
	prometheus.MustRegister(callDuration)
}

// Metrics counts calls by outcome ("success", "timeout", "error") and observes their latency.
func Metrics[Req, Resp any](operation string) Middleware[Req, Resp] {
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		return serviceFuncs[Req, Resp]{
			ready: next.Ready,
			call: func(ctx context.Context, req Req) <-chan Result[Resp] {
				start := time.Now()
				inner := next.Call(ctx, req)
				out := make(chan Result[Resp], 1)
				go func() {
					res := <-inner
					callsTotal.WithLabelValues(operation, status(res.Err)).Inc()
					callDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
					out <- res
				}()
				return out
			},
		}
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
