package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"rpc-duplex/loadbalance"
	"rpc-duplex/middleware"
	"rpc-duplex/registry"
)

// startEcho runs a raw TCP echo server that copies every byte back.
func startEcho(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return l.Addr().String()
}

func recvFrame(t *testing.T, ch *Channel) string {
	t.Helper()
	select {
	case f, ok := <-ch.Inbound():
		if !ok {
			t.Fatalf("inbound closed, err=%v", ch.Err())
		}
		return string(f)
	case <-time.After(3 * time.Second):
		t.Fatal("no frame within 3s")
	}
	return ""
}

func TestConnectEchoRoundTrip(t *testing.T) {
	addr := startEcho(t)

	ch, err := Connect(context.Background(), addr)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if ch.RemoteAddr() != addr {
		t.Fatalf("RemoteAddr = %q, want %q", ch.RemoteAddr(), addr)
	}

	if err := ch.Send(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := recvFrame(t, ch); got != "ping" {
		t.Fatalf("got %q, want ping", got)
	}

	// Half-close: the echo server sees EOF, closes, and the pump ends cleanly.
	ch.Close()
	waitDone(t, ch)
	if err := ch.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
}

func TestConnectConcurrentSendersKeepTheirOrder(t *testing.T) {
	addr := startEcho(t)
	ch, err := Connect(context.Background(), addr)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	const senders, perSender = 4, 50
	var wg sync.WaitGroup
	for g := 0; g < senders; g++ {
		g := g
		h := ch.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer h.Close()
			for i := 0; i < perSender; i++ {
				if err := h.Send(context.Background(), []byte(fmt.Sprintf("%d-%03d", g, i))); err != nil {
					t.Errorf("sender %d: %v", g, err)
					return
				}
			}
		}()
	}

	// 每个 sender 自己的帧必须按顺序回来
	next := make([]int, senders)
	for n := 0; n < senders*perSender; n++ {
		var g, i int
		if _, err := fmt.Sscanf(recvFrame(t, ch), "%d-%d", &g, &i); err != nil {
			t.Fatal(err)
		}
		if i != next[g] {
			t.Fatalf("sender %d: got frame %d, want %d", g, i, next[g])
		}
		next[g]++
	}

	wg.Wait()
	ch.Close()
	waitDone(t, ch)
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	_, err = Connect(context.Background(), addr)
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConnectError", err)
	}
	if ce.Address != addr || ce.Network != "tcp" {
		t.Fatalf("ConnectError = %+v", ce)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("err = %v, want ECONNREFUSED in chain", err)
	}
}

func TestConnectUnsupportedNetwork(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:1", WithNetwork("sctp"))
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConnectError", err)
	}
}

func TestConnectCancelledContext(t *testing.T) {
	addr := startEcho(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, addr)
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConnectError", err)
	}
}

func TestSendServiceWithTimeout(t *testing.T) {
	fc := newFakeConn(nil)
	fc.writeGate = make(chan struct{})
	defer fc.Close()

	ch := Start(fc, WithQueueSize(1), WithLinger(10*time.Millisecond))
	svc := middleware.NewTimeout(SendService(ch), 50*time.Millisecond)

	// Writer stuck plus a full queue, the third send can only time out.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		_, err = middleware.Do(context.Background(), svc, []byte("x"))
	}
	if !errors.Is(err, middleware.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestSendServiceReadiness(t *testing.T) {
	fc := newFakeConn(nil)
	ch := Start(fc, WithLinger(10*time.Millisecond))
	svc := SendService(ch)

	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("Ready on open channel: %v", err)
	}
	if _, err := middleware.Do(context.Background(), svc, []byte("hello")); err != nil {
		t.Fatalf("Do: %v", err)
	}

	ch.Close()
	if err := svc.Ready(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Ready after Close = %v, want ErrClosed", err)
	}
	waitDone(t, ch)
}

func TestConnectService(t *testing.T) {
	addr := startEcho(t)
	reg := registry.NewMemoryRegistry()
	reg.Register(context.Background(), "echo", registry.ServiceInstance{Addr: addr, Network: "tcp", Weight: 1}, 10)

	d := Discovery{Registry: reg, Balancer: &loadbalance.RoundRobinBalancer{}}
	ch, err := ConnectService(context.Background(), d, "echo", "")
	if err != nil {
		t.Fatalf("ConnectService: %v", err)
	}
	defer ch.Close()

	ch.Send(context.Background(), []byte("ping"))
	if got := recvFrame(t, ch); got != "ping" {
		t.Fatalf("got %q, want ping", got)
	}
}

func TestConnectServiceNoInstances(t *testing.T) {
	d := Discovery{Registry: registry.NewMemoryRegistry(), Balancer: &loadbalance.RoundRobinBalancer{}}
	_, err := ConnectService(context.Background(), d, "missing", "")
	if !errors.Is(err, loadbalance.ErrNoInstances) {
		t.Fatalf("err = %v, want ErrNoInstances", err)
	}
}
