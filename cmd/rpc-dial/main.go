// Command rpc-dial opens a duplex channel to a message server, sends timestamped pings
// through a timeout-bounded send service and prints every reply with its round-trip time.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"rpc-duplex/codec"
	"rpc-duplex/config"
	"rpc-duplex/loadbalance"
	"rpc-duplex/message"
	"rpc-duplex/middleware"
	"rpc-duplex/observability"
	"rpc-duplex/protocol"
	"rpc-duplex/registry"
	"rpc-duplex/transport"
)

type options struct {
	Config       string        `long:"config" short:"c" description:"YAML config file"`
	Network      string        `long:"network" description:"tcp, unix or quic (overrides config)"`
	Address      string        `long:"address" short:"a" description:"server address; empty resolves --service through the registry"`
	Service      string        `long:"service" description:"service name to discover"`
	Key          string        `long:"key" description:"balancer key for consistent hashing"`
	Codec        string        `long:"codec" description:"frame codec: framed or lines"`
	PayloadCodec string        `long:"payload-codec" default:"json" description:"ping encoding: json, binary or cbor"`
	Count        int           `long:"count" short:"n" default:"5" description:"pings to send"`
	Interval     time.Duration `long:"interval" default:"200ms" description:"delay between pings"`
	Wait         time.Duration `long:"wait" default:"2s" description:"how long to wait for replies after the last ping"`
	Retries      int           `long:"retries" default:"0" description:"resend a ping that timed out this many times"`
	Message      string        `long:"message" short:"m" default:"ping" description:"ping payload"`
	Insecure     bool          `long:"insecure" description:"skip QUIC certificate verification"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "rpc-dial:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	applyFlags(&cfg.Client, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	payloadCodec, err := codec.ByName(opts.PayloadCodec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := connect(ctx, cfg, opts.Key, logger)
	if err != nil {
		return err
	}
	logger.Info("connected", zap.String("remote", ch.RemoteAddr()))

	replies := make(chan struct{}, opts.Count)
	go printReplies(ch, payloadCodec, replies)

	mws := []middleware.Middleware[[]byte, struct{}]{
		middleware.Logging[[]byte, struct{}](logger, "send"),
		middleware.Metrics[[]byte, struct{}]("send"),
		middleware.Retry[[]byte, struct{}](opts.Retries, 50*time.Millisecond),
	}
	if d := cfg.Client.SendTimeout.Duration; d > 0 {
		mws = append(mws, middleware.Timeout[[]byte, struct{}](d))
	}
	send := middleware.Chain(mws...)(transport.SendService(ch))

	sent := 0
	for seq := 1; seq <= opts.Count && ctx.Err() == nil; seq++ {
		data, err := payloadCodec.Encode(message.NewPing(uint64(seq), []byte(opts.Message)))
		if err != nil {
			return err
		}
		if _, err := middleware.Do(ctx, send, data); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				break
			}
			logger.Warn("ping not sent", zap.Int("seq", seq), zap.Error(err))
			continue
		}
		sent++
		if seq < opts.Count {
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
			}
		}
	}

	received := 0
	deadline := time.After(opts.Wait)
wait:
	for received < sent {
		select {
		case <-replies:
			received++
		case <-ch.Done():
			break wait
		case <-deadline:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	ch.Close()
	<-ch.Done()
	fmt.Printf("sent %d, received %d\n", sent, received)
	return ch.Err()
}

func applyFlags(c *config.ClientConfig, opts options) {
	if opts.Network != "" {
		c.Network = opts.Network
	}
	if opts.Address != "" {
		c.Address = opts.Address
	}
	if opts.Service != "" {
		c.Service = opts.Service
		if opts.Address == "" {
			c.Address = ""
		}
	}
	if opts.Codec != "" {
		c.Codec = opts.Codec
	}
	if opts.Insecure {
		c.InsecureSkipVerify = true
	}
}

func connect(ctx context.Context, cfg *config.Config, key string, logger *zap.Logger) (*transport.Channel, error) {
	frameCodec, err := protocol.ByName(cfg.Client.Codec)
	if err != nil {
		return nil, err
	}
	c := cfg.Client
	topts := []transport.Option{
		transport.WithNetwork(c.Network),
		transport.WithCodec(frameCodec),
		transport.WithDialTimeout(c.DialTimeout.Duration),
		transport.WithQueueSize(c.QueueSize),
		transport.WithInboundBuffer(c.InboundBuffer),
		transport.WithHeartbeat(c.Heartbeat.Duration),
		transport.WithLinger(c.Linger.Duration),
		transport.WithLogger(logger),
	}
	if c.Network == "quic" {
		topts = append(topts, transport.WithTLSConfig(&tls.Config{
			InsecureSkipVerify: c.InsecureSkipVerify,
			NextProtos:         []string{transport.DefaultALPN},
			MinVersion:         tls.VersionTLS13,
		}))
	}

	if c.Address != "" {
		return transport.Connect(ctx, c.Address, topts...)
	}

	reg, err := registry.NewEtcdRegistry(cfg.Registry.Etcd.Endpoints, cfg.Registry.Etcd.DialTimeout.Duration, cfg.Registry.Etcd.KeyPrefix)
	if err != nil {
		return nil, err
	}
	defer reg.Close()
	balancer, err := loadbalance.ByName(c.LoadBalancer)
	if err != nil {
		return nil, err
	}
	return transport.ConnectService(ctx, transport.Discovery{Registry: reg, Balancer: balancer}, c.Service, key, topts...)
}

func printReplies(ch *transport.Channel, payloadCodec codec.Codec, replies chan<- struct{}) {
	for frame := range ch.Inbound() {
		now := time.Now()
		var ping message.Ping
		if err := payloadCodec.Decode(frame, &ping); err != nil {
			fmt.Printf("reply: %q (not a ping: %v)\n", frame, err)
		} else {
			fmt.Printf("reply seq=%d rtt=%v payload=%q\n", ping.Seq, ping.RoundTrip(now), ping.Payload)
		}
		select {
		case replies <- struct{}{}:
		default:
		}
	}
}
