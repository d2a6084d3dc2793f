// Command rpc-echo runs an echo frame server, optionally registered in etcd,
// with its Prometheus metrics served over HTTP.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rpc-duplex/config"
	"rpc-duplex/middleware"
	"rpc-duplex/observability"
	"rpc-duplex/protocol"
	"rpc-duplex/registry"
	"rpc-duplex/server"
)

type options struct {
	Config    string  `long:"config" short:"c" description:"YAML config file"`
	Name      string  `long:"name" description:"service name to register (overrides config)"`
	Network   string  `long:"network" description:"tcp, unix or quic"`
	Address   string  `long:"address" short:"a" description:"listen address"`
	Advertise string  `long:"advertise" description:"address registered for clients"`
	Codec     string  `long:"codec" description:"frame codec: framed or lines"`
	Rate      float64 `long:"rate" description:"frames per second before replies are dropped, 0 = unlimited"`
	Metrics   string  `long:"metrics-addr" description:"serve /metrics on this address"`
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
		fmt.Fprintln(os.Stderr, "rpc-echo:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc := cfg.Server
	frameCodec, err := protocol.ByName(sc.Codec)
	if err != nil {
		return err
	}

	var reg registry.Registry
	if cfg.Registry.Type == "etcd" {
		etcdReg, err := registry.NewEtcdRegistry(cfg.Registry.Etcd.Endpoints, cfg.Registry.Etcd.DialTimeout.Duration, cfg.Registry.Etcd.KeyPrefix)
		if err != nil {
			return err
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	svr := server.NewServer(sc.Name, server.Echo,
		server.WithCodec(frameCodec),
		server.WithLogger(logger),
		server.WithRegistration(cfg.Registry.Etcd.LeaseTTL, sc.Weight, sc.Version))
	svr.Use(middleware.Logging[[]byte, []byte](logger, "echo"))
	svr.Use(middleware.Metrics[[]byte, []byte]("echo"))
	if sc.RateLimit > 0 {
		svr.Use(middleware.RateLimit[[]byte, []byte](sc.RateLimit, sc.Burst))
	}
	if d := sc.HandlerTimeout.Duration; d > 0 {
		svr.Use(middleware.Timeout[[]byte, []byte](d))
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.Serve(sc.Network, sc.Address, sc.Advertise, reg)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logger.Info("shutting down", zap.Stringer("signal", s))
	}

	if err := svr.Shutdown(sc.ShutdownTimeout.Duration); err != nil {
		return err
	}
	return <-errCh
}

func applyFlags(cfg *config.Config, opts options) {
	sc := &cfg.Server
	if opts.Name != "" {
		sc.Name = opts.Name
	}
	if opts.Network != "" {
		sc.Network = opts.Network
	}
	if opts.Address != "" {
		sc.Address = opts.Address
	}
	if opts.Advertise != "" {
		sc.Advertise = opts.Advertise
	}
	if opts.Codec != "" {
		sc.Codec = opts.Codec
	}
	if opts.Rate > 0 {
		sc.RateLimit = opts.Rate
	}
	if opts.Metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = opts.Metrics
	}
}
