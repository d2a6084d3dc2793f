// Package middleware provides composable decorators for asynchronous request/response services.
//
// A Service is checked for readiness, then called; the call returns a future (a channel
// that delivers exactly one Result). Middlewares wrap a Service in the onion model:
//
//	Chain(A, B, C)(svc) → A(B(C(svc)))
//	Execution order: A → B → C → svc → C → B → A
package middleware

import "context"

// Result is the outcome of a single call.
type Result[T any] struct {
	Value T
	Err   error
}

// Service is an asynchronous request/response operation.
//
// Callers must get a nil error from Ready before each Call. Call must not block:
// it returns a channel that receives exactly one Result and is never closed without one.
type Service[Req, Resp any] interface {
	Ready(ctx context.Context) error
	Call(ctx context.Context, req Req) <-chan Result[Resp]
}

// Middleware decorates a Service.
type Middleware[Req, Resp any] func(next Service[Req, Resp]) Service[Req, Resp]

// Chain composes middlewares into one; the first argument is the outermost layer.
func Chain[Req, Resp any](middlewares ...Middleware[Req, Resp]) Middleware[Req, Resp] {
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// ServiceFunc turns a blocking function into a Service that is always ready.
// Each call runs fn on its own goroutine.
type ServiceFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f ServiceFunc[Req, Resp]) Ready(context.Context) error { return nil }

func (f ServiceFunc[Req, Resp]) Call(ctx context.Context, req Req) <-chan Result[Resp] {
	out := make(chan Result[Resp], 1) // Buffered so an abandoned call never leaks the goroutine
	go func() {
		v, err := f(ctx, req)
		out <- Result[Resp]{Value: v, Err: err}
	}()
	return out
}

// Do runs the full call protocol: readiness check, call, wait for the result.
// Readiness errors are returned unchanged.
func Do[Req, Resp any](ctx context.Context, svc Service[Req, Resp], req Req) (Resp, error) {
	var zero Resp
	if err := svc.Ready(ctx); err != nil {
		return zero, err
	}
	select {
	case r := <-svc.Call(ctx, req):
		return r.Value, r.Err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// serviceFuncs assembles a Service from a pair of closures.
type serviceFuncs[Req, Resp any] struct {
	ready func(ctx context.Context) error
	call  func(ctx context.Context, req Req) <-chan Result[Resp]
}

func (s serviceFuncs[Req, Resp]) Ready(ctx context.Context) error { return s.ready(ctx) }

func (s serviceFuncs[Req, Resp]) Call(ctx context.Context, req Req) <-chan Result[Resp] {
	return s.call(ctx, req)
}
