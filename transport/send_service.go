package transport

import (
	"context"

	"rpc-duplex/middleware"
)

// SendService exposes a Channel's submissions as a middleware.Service, so sends can be
// decorated like any other call (bounded by middleware.Timeout, rate limited, logged).
func SendService(ch *Channel) middleware.Service[[]byte, struct{}] {
	return sendService{ch: ch}
}

type sendService struct {
	ch *Channel
}

// Ready fails with ErrClosed once the handle or the outbound side is closed.
func (s sendService) Ready(context.Context) error {
	s.ch.p.mu.Lock()
	closed := s.ch.closed || s.ch.p.outboundClosed()
	s.ch.p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return nil
}

func (s sendService) Call(ctx context.Context, frame []byte) <-chan middleware.Result[struct{}] {
	return middleware.ServiceFunc[[]byte, struct{}](func(ctx context.Context, frame []byte) (struct{}, error) {
		return struct{}{}, s.ch.Send(ctx, frame)
	}).Call(ctx, frame)
}
