// Package transport implements the client-side connection pipeline of the RPC client.
//
// Connect dials a message server, applies a frame codec, and hands the connection to a
// duplex pump running in the background. The caller gets a Channel: a cheap handle for
// submitting outbound frames, plus the inbound frame stream the pump publishes.
//
//	goroutine-1 ──Send──┐
//	goroutine-2 ──Send──┼──→ queue ──→ pump ──→ single conn ──→ Server
//	goroutine-3 ──Send──┘                │
//	                         Inbound() ←─┘ (ends on first read error)
//
// There is no reconnect: once a pump terminates, call Connect again for a new Channel.
package transport

import (
	"context"

	"go.uber.org/zap"
)

// Connect opens a connection to address and starts its pump.
// A failed connection attempt returns a *ConnectError and starts nothing; it is not retried.
func Connect(ctx context.Context, address string, opts ...Option) (*Channel, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	dialer := o.Dialer
	if dialer == nil {
		d, err := DialerFor(o.Network, o)
		if err != nil {
			return nil, &ConnectError{Network: o.Network, Address: address, Err: err}
		}
		dialer = d
	}

	if o.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.DialTimeout)
		defer cancel()
	}

	conn, err := dialer.Dial(ctx, address)
	if err != nil {
		return nil, &ConnectError{Network: dialer.Network(), Address: address, Err: err}
	}
	return Start(conn, opts...), nil
}

// Start hands an already open connection to a new pump and returns its first handle.
// The pump takes ownership of conn.
func Start(conn Conn, opts ...Option) *Channel {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	p := newPump(conn, o)
	ch := newChannel(p)
	go p.run()

	p.logger.Debug("duplex pump started",
		zap.Int("queue_size", o.QueueSize),
		zap.Duration("heartbeat", o.Heartbeat))
	return ch
}
