package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Conn is the live byte stream handed to the pump. The pump becomes its only owner.
//
// Conns that can shut down their write direction alone (net.TCPConn, net.UnixConn,
// QUIC streams) also implement CloseWrite; the pump uses it to signal end of output.
type Conn interface {
	io.ReadWriteCloser
}

type closeWriter interface {
	CloseWrite() error
}

type remoteAddresser interface {
	RemoteAddr() net.Addr
}

// Dialer opens one stream connection to an address.
type Dialer interface {
	Network() string
	Dial(ctx context.Context, address string) (Conn, error)
}

// NetDialer dials stream sockets from the net package ("tcp", "tcp4", "tcp6", "unix").
type NetDialer struct {
	Net       string
	Timeout   time.Duration
	KeepAlive time.Duration
}

func (d NetDialer) Network() string { return d.Net }

func (d NetDialer) Dial(ctx context.Context, address string) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return nd.DialContext(ctx, d.Net, address)
}

// DialerFor returns the dialer for a network name.
func DialerFor(network string, opts *Options) (Dialer, error) {
	switch network {
	case "", "tcp", "tcp4", "tcp6", "unix":
		if network == "" {
			network = "tcp"
		}
		return NetDialer{Net: network, Timeout: opts.DialTimeout, KeepAlive: opts.KeepAlive}, nil
	case "quic":
		return NewQUICDialer(opts.TLSConfig), nil
	}
	return nil, fmt.Errorf("unsupported network %q", network)
}
