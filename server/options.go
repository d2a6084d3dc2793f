package server

import (
	"crypto/tls"

	"go.uber.org/zap"

	"rpc-duplex/protocol"
)

type Options struct {
	Codec     protocol.Codec
	TLSConfig *tls.Config // QUIC listeners only; nil generates a self-signed certificate
	LeaseTTL  int64       // Registry lease TTL in seconds
	Weight    int
	Version   string
	Logger    *zap.Logger
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Codec:    protocol.Framed{},
		LeaseTTL: 10,
		Weight:   1,
	}
}

func WithCodec(c protocol.Codec) Option {
	return func(o *Options) {
		o.Codec = c
	}
}

func WithTLSConfig(conf *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = conf
	}
}

// WithRegistration sets what Serve registers: lease TTL (seconds), balancer weight and version.
func WithRegistration(ttl int64, weight int, version string) Option {
	return func(o *Options) {
		o.LeaseTTL = ttl
		o.Weight = weight
		o.Version = version
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger.Named("server")
	}
	return zap.L().Named("server")
}
