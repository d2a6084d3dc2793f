package transport

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/quic-go/quic-go"
)

// DefaultALPN is the TLS application protocol negotiated by QUIC dialers and listeners.
const DefaultALPN = "rpc-duplex"

// QUICDialer opens a QUIC connection and carries the frame stream on its first
// bidirectional stream.
type QUICDialer struct {
	TLSConfig *tls.Config
	Config    *quic.Config
}

// NewQUICDialer returns a dialer using tlsConf, or a TLS 1.3 config negotiating
// DefaultALPN when tlsConf is nil.
func NewQUICDialer(tlsConf *tls.Config) *QUICDialer {
	if tlsConf == nil {
		tlsConf = &tls.Config{
			NextProtos: []string{DefaultALPN},
			MinVersion: tls.VersionTLS13,
		}
	}
	return &QUICDialer{TLSConfig: tlsConf, Config: &quic.Config{}}
}

func (d *QUICDialer) Network() string { return "quic" }

func (d *QUICDialer) Dial(ctx context.Context, address string) (Conn, error) {
	qc, err := quic.DialAddr(ctx, address, d.TLSConfig, d.Config)
	if err != nil {
		return nil, err
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return NewQUICConn(qc, stream), nil
}

// QUICConn adapts one QUIC stream to Conn. Closing it closes the whole QUIC connection.
type QUICConn struct {
	conn   quic.Connection
	stream quic.Stream
}

func NewQUICConn(conn quic.Connection, stream quic.Stream) *QUICConn {
	return &QUICConn{conn: conn, stream: stream}
}

func (c *QUICConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *QUICConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

// CloseWrite finishes the send direction of the stream; reads keep working.
func (c *QUICConn) CloseWrite() error { return c.stream.Close() }

func (c *QUICConn) Close() error {
	c.stream.CancelRead(0)
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "")
}

func (c *QUICConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
