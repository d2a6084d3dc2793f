package transport

import "context"

// Channel is a handle to a pump's outbound queue. Handles are cheap: Clone shares the
// same pump, and the outbound side shuts down when the last handle is closed.
//
// All handles share one inbound stream; exactly one owner should consume it.
type Channel struct {
	p      *pump
	closed bool // guarded by p.mu
}

func newChannel(p *pump) *Channel {
	p.handles = 1
	return &Channel{p: p}
}

// Send enqueues one frame. A nil error acknowledges the enqueue, not delivery.
//
// Send blocks while the queue is full, until there is room, the outbound side
// shuts down (ErrClosed) or ctx is done. The frame is copied before it is queued.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	if err := c.p.codec.Validate(frame); err != nil {
		return err
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)

	// Register before the closed-check, so the writer keeps draining until this send is over
	c.p.mu.Lock()
	if c.closed || c.p.outboundClosed() {
		c.p.mu.Unlock()
		return ErrClosed
	}
	c.p.sends.Add(1)
	c.p.mu.Unlock()
	defer c.p.sends.Done()

	select {
	case c.p.queue <- buf:
		return nil
	case <-c.p.closing:
		return ErrClosed
	case <-c.p.outboundDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clone returns a new handle to the same pump. Cloning a closed handle returns a closed handle.
func (c *Channel) Clone() *Channel {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.closed {
		return &Channel{p: c.p, closed: true}
	}
	c.p.handles++
	return &Channel{p: c.p}
}

// Close releases this handle and never blocks. Closing the last handle shuts the outbound
// side down: sends blocked on a full queue return ErrClosed, the pump writes what is
// already queued and then closes its write direction. Close is idempotent.
func (c *Channel) Close() error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.p.handles--
	if c.p.handles == 0 {
		close(c.p.closing)
	}
	return nil
}

// Inbound returns the stream of frames read from the connection. It is closed when the
// peer closes the connection or on the first read error; use Err to tell them apart.
func (c *Channel) Inbound() <-chan []byte { return c.p.inbound }

// Done is closed once the pump has finished both directions and released the connection.
func (c *Channel) Done() <-chan struct{} { return c.p.done }

// Err returns the stream failure that ended the pump, or nil if it ended cleanly
// (or is still running).
func (c *Channel) Err() error { return c.p.Err() }

// RemoteAddr returns the peer address, or "" if the transport has none.
func (c *Channel) RemoteAddr() string { return remoteAddr(c.p.conn) }
