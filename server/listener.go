package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"rpc-duplex/transport"
)

// Listener yields one byte stream per accepted client.
type Listener interface {
	Accept() (io.ReadWriteCloser, error)
	Close() error
	Addr() net.Addr
}

// Listen binds a listener for network: "tcp", "tcp4", "tcp6" and "unix" use the net
// package, "quic" accepts the first bidirectional stream of every QUIC connection.
func Listen(network, address string, tlsConf *tls.Config) (Listener, error) {
	switch network {
	case "", "tcp", "tcp4", "tcp6", "unix":
		if network == "" {
			network = "tcp"
		}
		l, err := net.Listen(network, address)
		if err != nil {
			return nil, err
		}
		return netListener{l}, nil
	case "quic":
		return listenQUIC(address, tlsConf)
	}
	return nil, fmt.Errorf("unsupported network %q", network)
}

type netListener struct {
	net.Listener
}

func (l netListener) Accept() (io.ReadWriteCloser, error) {
	return l.Listener.Accept()
}

var errListenerClosed = errors.New("quic listener closed")

// quicListener accepts connections in the background: a client's stream only becomes
// visible once it sends its first frame, so waiting for it inline would stall other clients.
type quicListener struct {
	l       *quic.Listener
	conns   chan io.ReadWriteCloser
	closeCh chan struct{}
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
}

func listenQUIC(address string, tlsConf *tls.Config) (*quicListener, error) {
	if tlsConf == nil {
		cert, err := selfSignedCert()
		if err != nil {
			return nil, err
		}
		tlsConf = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{transport.DefaultALPN},
			MinVersion:   tls.VersionTLS13,
		}
	}
	l, err := quic.ListenAddr(address, tlsConf, &quic.Config{})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	ql := &quicListener{
		l:       l,
		conns:   make(chan io.ReadWriteCloser, 8),
		closeCh: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go ql.acceptLoop()
	return ql, nil
}

func (l *quicListener) acceptLoop() {
	for {
		qc, err := l.l.Accept(l.ctx)
		if err != nil {
			return
		}
		go func() {
			stream, err := qc.AcceptStream(l.ctx)
			if err != nil {
				_ = qc.CloseWithError(0, "no stream")
				return
			}
			select {
			case l.conns <- transport.NewQUICConn(qc, stream):
			case <-l.closeCh:
				_ = qc.CloseWithError(0, "listener closed")
			}
		}()
	}
}

func (l *quicListener) Accept() (io.ReadWriteCloser, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closeCh:
		return nil, errListenerClosed
	}
}

func (l *quicListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closeCh)
		l.cancel()
		err = l.l.Close()
	})
	return err
}

func (l *quicListener) Addr() net.Addr { return l.l.Addr() }

// selfSignedCert generates a short-lived self-signed certificate for local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
