package transport

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"

	"rpc-duplex/protocol"
)

// Options configures Connect. The zero value is not usable; start from DefaultOptions.
type Options struct {
	Network       string         // "tcp", "unix" or "quic"; ignored when Dialer is set
	Dialer        Dialer         // Overrides Network
	Codec         protocol.Codec // Frame codec applied to the connection
	DialTimeout   time.Duration  // Bounds the connection attempt, 0 = only the caller's ctx
	KeepAlive     time.Duration  // TCP keep-alive period for net dialers
	QueueSize     int            // Outbound submission queue capacity (back-pressure bound)
	InboundBuffer int            // Frames buffered for the inbound consumer
	Heartbeat     time.Duration  // Idle heartbeat interval, 0 = disabled
	Linger        time.Duration  // How long to wait for the peer to close after the outbound side ends
	TLSConfig     *tls.Config    // QUIC only, nil = verify against system roots with DefaultALPN
	Logger        *zap.Logger
}

func DefaultOptions() *Options {
	return &Options{
		Network:       "tcp",
		Codec:         protocol.Framed{},
		DialTimeout:   5 * time.Second,
		KeepAlive:     30 * time.Second,
		QueueSize:     64,
		InboundBuffer: 64,
		Linger:        5 * time.Second,
	}
}

type Option func(*Options)

func WithNetwork(network string) Option {
	return func(o *Options) {
		o.Network = network
	}
}

func WithDialer(d Dialer) Option {
	return func(o *Options) {
		o.Dialer = d
	}
}

func WithCodec(c protocol.Codec) Option {
	return func(o *Options) {
		o.Codec = c
	}
}

func WithDialTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.DialTimeout = timeout
	}
}

func WithQueueSize(n int) Option {
	return func(o *Options) {
		o.QueueSize = n
	}
}

func WithInboundBuffer(n int) Option {
	return func(o *Options) {
		o.InboundBuffer = n
	}
}

// WithHeartbeat sends a heartbeat frame whenever the outbound side has been idle for interval.
// It has no effect when the codec has no heartbeat frame.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *Options) {
		o.Heartbeat = interval
	}
}

func WithLinger(d time.Duration) Option {
	return func(o *Options) {
		o.Linger = d
	}
}

func WithTLSConfig(conf *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = conf
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.L()
}
