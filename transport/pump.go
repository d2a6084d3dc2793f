package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"rpc-duplex/protocol"
)

// pump owns one connection for its whole life. It runs as a single supervisor goroutine
// that writes outbound frames itself and owns one reader goroutine for the inbound side:
//
//	Channel.Send ──→ queue ──→ writeLoop ──→ Encoder ──→ conn
//	conn ──→ Decoder ──→ readLoop ──→ inbound ──→ consumer
//
// The two directions never wait on each other, so a stalled peer write cannot block
// inbound delivery and a slow inbound consumer cannot block outbound writes.
type pump struct {
	conn   Conn
	codec  protocol.Codec
	enc    protocol.Encoder
	dec    protocol.Decoder
	opts   *Options
	logger *zap.Logger

	queue   chan []byte // Outbound submissions; never closed, the writer drains it after closing
	inbound chan []byte // Decoded inbound frames, closed on the first read error or EOF

	// mu guards the handle count and closing; it is never held across a blocking operation.
	mu      sync.Mutex
	handles int
	closing chan struct{}  // Closed by the last Channel.Close
	sends   sync.WaitGroup // Sends between their closed-check and their return

	outboundDone chan struct{} // Closed when writeLoop returns
	inboundDone  chan struct{} // Closed when readLoop returns
	stop         chan struct{} // Closed when the connection is torn down
	done         chan struct{} // Closed when both directions are finished

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error // First stream failure, nil after a clean close
}

func newPump(conn Conn, opts *Options) *pump {
	return &pump{
		conn:         conn,
		codec:        opts.Codec,
		enc:          opts.Codec.NewEncoder(conn),
		dec:          opts.Codec.NewDecoder(conn),
		opts:         opts,
		logger:       opts.logger().With(zap.String("remote", remoteAddr(conn)), zap.String("codec", opts.Codec.Name())),
		queue:        make(chan []byte, max(opts.QueueSize, 0)),
		inbound:      make(chan []byte, max(opts.InboundBuffer, 0)),
		closing:      make(chan struct{}),
		outboundDone: make(chan struct{}),
		inboundDone:  make(chan struct{}),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// run drives both directions to completion and releases the connection.
//
// Shutdown order:
//  1. writeLoop returns: last handle closed and queue drained, or a write failed
//  2. on a clean finish, half-close the write side and give the peer Linger to close its side
//  3. tear the connection down, which also unblocks the reader
//  4. wait for readLoop, then report done
func (p *pump) run() {
	activePumps.Inc()
	defer activePumps.Dec()
	defer close(p.done)

	go p.readLoop()

	writeErr := p.writeLoop()
	close(p.outboundDone)

	if writeErr != nil {
		p.teardown()
	} else {
		p.closeWrite()
		linger := time.NewTimer(p.opts.Linger)
		select {
		case <-p.inboundDone:
		case <-linger.C:
			p.logger.Debug("peer did not close within linger, closing connection", zap.Duration("linger", p.opts.Linger))
		}
		linger.Stop()
		p.teardown()
	}
	<-p.inboundDone
	p.logger.Debug("pump terminated", zap.Error(p.Err()))
}

// writeLoop dequeues frames in FIFO order and writes each one before taking the next.
// It is the only writer of the connection, so at most one write is in flight.
//
// Once the last handle closes, sends still in progress either enqueue or give up with
// ErrClosed; the loop keeps writing until they are all gone, then flushes the rest of the queue.
func (p *pump) writeLoop() error {
	var heartbeat <-chan time.Time
	hb, canHeartbeat := p.enc.(protocol.HeartbeatEncoder)
	if p.opts.Heartbeat > 0 && canHeartbeat {
		ticker := time.NewTicker(p.opts.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	idle := true
	closing := p.closing
	var sendsDone <-chan struct{}

	for {
		select {
		case frame := <-p.queue:
			if err := p.write(frame); err != nil {
				return err
			}
			idle = false
		case <-closing:
			closing = nil
			sendsDone = p.sendsDone()
		case <-sendsDone:
			for {
				select {
				case frame := <-p.queue:
					if err := p.write(frame); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case <-heartbeat:
			// Only ping a connection that carried nothing since the last tick
			if !idle {
				idle = true
				continue
			}
			if err := hb.EncodeHeartbeat(); err != nil {
				p.fail("outbound", err)
				return err
			}
		}
	}
}

func (p *pump) write(frame []byte) error {
	if err := p.enc.Encode(frame); err != nil {
		p.fail("outbound", err)
		return err
	}
	observeFrame("outbound", len(frame))
	return nil
}

// sendsDone is closed once no Send is in progress. Only valid after closing:
// no new send can register by then.
func (p *pump) sendsDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		p.sends.Wait()
		close(done)
	}()
	return done
}

// outboundClosed reports whether the last handle is closed or the writer has stopped.
func (p *pump) outboundClosed() bool {
	select {
	case <-p.closing:
		return true
	case <-p.outboundDone:
		return true
	default:
		return false
	}
}

// readLoop republishes decoded frames until the first decode error.
// The error is recorded and logged but never delivered as a frame: the inbound
// stream simply ends and nothing read after it is published.
func (p *pump) readLoop() {
	defer close(p.inboundDone)
	defer close(p.inbound)

	for {
		frame, err := p.dec.Decode()
		if err != nil {
			switch {
			case p.stopped():
				// Local teardown, not a stream failure
			case errors.Is(err, io.EOF):
				p.logger.Debug("inbound stream closed by peer")
			default:
				p.fail("inbound", err)
			}
			return
		}
		observeFrame("inbound", len(frame))

		select {
		case p.inbound <- frame:
		case <-p.stop:
			return
		}
	}
}

func (p *pump) fail(direction string, err error) {
	streamErrors.WithLabelValues(direction).Inc()
	p.logger.Error("stream error", zap.String("direction", direction), zap.Error(err))

	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
}

// Err returns the first recorded stream failure.
func (p *pump) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *pump) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *pump) closeWrite() {
	if cw, ok := p.conn.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			p.logger.Debug("half-close failed", zap.Error(err))
		}
	}
}

func (p *pump) teardown() {
	p.closeOnce.Do(func() {
		close(p.stop)
		if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			p.logger.Debug("close connection", zap.Error(err))
		}
	})
}

func remoteAddr(conn Conn) string {
	if ra, ok := conn.(remoteAddresser); ok && ra.RemoteAddr() != nil {
		return ra.RemoteAddr().String()
	}
	return ""
}
