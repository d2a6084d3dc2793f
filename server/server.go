// Package server implements a frame server: the remote end a transport.Channel talks to.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine decodes frames)
//	  → for each frame: go handleFrame (parallel processing)
//	    → middleware chain → Service → encode reply under the per-connection write lock
//
// It is used for the echo endpoint in tests and by cmd/rpc-echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rpc-duplex/middleware"
	"rpc-duplex/protocol"
	"rpc-duplex/registry"
)

// Service handles one inbound frame. A nil reply sends nothing back.
type Service = middleware.Service[[]byte, []byte]

// Echo replies with the frame it received.
var Echo Service = middleware.ServiceFunc[[]byte, []byte](func(_ context.Context, frame []byte) ([]byte, error) {
	return frame, nil
})

// Server accepts stream connections and answers every frame through its Service.
type Server struct {
	name          string
	service       Service
	middlewares   []middleware.Middleware[[]byte, []byte]
	handler       Service // middleware(middleware(...(service))), built once in Serve
	opts          *Options
	logger        *zap.Logger
	listener      Listener
	wg            sync.WaitGroup // Tracks connections and in-flight frames for graceful shutdown
	shutdown      atomic.Bool    // Set during shutdown to suppress Accept errors
	ready         chan struct{}  // Closed once the listener is bound
	registry      registry.Registry
	advertiseAddr string
	network       string

	mu    sync.Mutex
	conns map[io.Closer]struct{}
}

// NewServer creates a server advertising itself as name and answering frames with svc.
func NewServer(name string, svc Service, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Server{
		name:    name,
		service: svc,
		opts:    o,
		logger:  o.logger().With(zap.String("service", name)),
		ready:   make(chan struct{}),
		conns:   make(map[io.Closer]struct{}),
	}
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware[[]byte, []byte]) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address, optionally registers with reg, and runs the accept loop
// until Shutdown. network is "tcp", "unix" or "quic".
//
// advertiseAddr is what gets registered (e.g. "127.0.0.1:8080"); it differs from the
// listen address because ":8080" is not routable for clients. Pass a nil reg to skip discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := Listen(network, address, svr.opts.TLSConfig)
	if err != nil {
		return err
	}
	return svr.ServeListener(network, listener, advertiseAddr, reg)
}

// ServeListener is Serve on an already bound listener.
func (svr *Server) ServeListener(network string, listener Listener, advertiseAddr string, reg registry.Registry) error {
	svr.listener = listener
	svr.network = network

	// Build the middleware chain once at startup (not per frame)
	svr.handler = middleware.Chain(svr.middlewares...)(svr.service)
	close(svr.ready)

	if reg != nil {
		svr.registry = reg
		svr.advertiseAddr = advertiseAddr
		instance := registry.ServiceInstance{
			Addr:    advertiseAddr,
			Network: network,
			Weight:  svr.opts.Weight,
			Version: svr.opts.Version,
		}
		if err := reg.Register(context.Background(), svr.name, instance, svr.opts.LeaseTTL); err != nil {
			listener.Close()
			return fmt.Errorf("register %s: %w", svr.name, err)
		}
	}
	svr.logger.Info("serving", zap.String("network", network), zap.Stringer("addr", listener.Addr()))

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener, which makes Accept fail
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		if !svr.admit(conn) {
			conn.Close()
			return nil
		}
		go svr.handleConn(conn)
	}
}

// Addr waits until the server is listening and returns its address.
func (svr *Server) Addr() net.Addr {
	<-svr.ready
	return svr.listener.Addr()
}

// handleConn reads frames sequentially (a stream has one reader) but answers each frame
// on its own goroutine. writeMu serializes replies so frames never interleave on the wire.
func (svr *Server) handleConn(conn io.ReadWriteCloser) {
	defer svr.wg.Done()
	defer svr.untrack(conn)
	defer conn.Close()

	dec := svr.opts.Codec.NewDecoder(conn)
	enc := svr.opts.Codec.NewEncoder(conn)
	writeMu := &sync.Mutex{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		frame, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !svr.shutdown.Load() {
				svr.logger.Debug("connection read ended", zap.Error(err))
			}
			return
		}

		svr.wg.Add(1)
		inflight.Add(1)
		go func() {
			defer svr.wg.Done()
			defer inflight.Done()
			svr.handleFrame(ctx, frame, enc, writeMu)
		}()
	}
}

// handleFrame runs one frame through the middleware chain and writes the reply.
func (svr *Server) handleFrame(ctx context.Context, frame []byte, enc protocol.Encoder, writeMu *sync.Mutex) {
	reply, err := middleware.Do(ctx, svr.handler, frame)
	if err != nil {
		svr.logger.Warn("frame handler failed", zap.Error(err))
		return
	}
	if reply == nil {
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := enc.Encode(reply); err != nil {
		svr.logger.Debug("failed to write reply", zap.Error(err))
	}
}

// admit registers a new connection unless shutdown has begun. The shutdown check and
// wg.Add share svr.mu with Shutdown, so no Add can race with wg.Wait.
func (svr *Server) admit(c io.Closer) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	svr.conns[c] = struct{}{}
	return true
}

func (svr *Server) untrack(c io.Closer) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	delete(svr.conns, c)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry, so clients stop dialing this server
//  2. Set the shutdown flag, so the Accept error is recognized as intentional
//  3. Close the listener and every open connection
//  4. Wait for in-flight frames to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := svr.registry.Deregister(ctx, svr.name, svr.advertiseAddr); err != nil {
			svr.logger.Warn("deregister failed", zap.Error(err))
		}
		cancel()
	}

	// The flag must be set before closing the listener, otherwise Serve returns a real error
	svr.mu.Lock()
	svr.shutdown.Store(true)
	for c := range svr.conns {
		c.Close()
	}
	svr.mu.Unlock()
	if svr.listener != nil {
		svr.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
