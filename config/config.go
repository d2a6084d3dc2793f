// Package config loads the YAML configuration shared by the rpc-dial and rpc-echo commands.
//
// Load starts from Default and overlays the file, so a config file only needs the keys it changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rpc-duplex/protocol"
)

type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ClientConfig struct {
	Network            string   `yaml:"network"` // tcp/unix/quic
	Address            string   `yaml:"address"` // empty = resolve Service through the registry
	Service            string   `yaml:"service"`
	LoadBalancer       string   `yaml:"load_balancer"`
	Codec              string   `yaml:"codec"` // frame codec: framed/lines
	QueueSize          int      `yaml:"queue_size"`
	InboundBuffer      int      `yaml:"inbound_buffer"`
	DialTimeout        Duration `yaml:"dial_timeout"`
	SendTimeout        Duration `yaml:"send_timeout"`
	Heartbeat          Duration `yaml:"heartbeat"`
	Linger             Duration `yaml:"linger"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"` // QUIC only
}

type ServerConfig struct {
	Name            string   `yaml:"name"`
	Network         string   `yaml:"network"`
	Address         string   `yaml:"address"`
	Advertise       string   `yaml:"advertise"`
	Codec           string   `yaml:"codec"`
	RateLimit       float64  `yaml:"rate_limit"` // frames per second, 0 = unlimited
	Burst           int      `yaml:"burst"`
	HandlerTimeout  Duration `yaml:"handler_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	Weight          int      `yaml:"weight"`
	Version         string   `yaml:"version"`
}

type RegistryConfig struct {
	Type string `yaml:"type"` // none/etcd
	Etcd struct {
		Endpoints   []string `yaml:"endpoints"`
		DialTimeout Duration `yaml:"dial_timeout"`
		KeyPrefix   string   `yaml:"key_prefix"`
		LeaseTTL    int64    `yaml:"lease_ttl"`
	} `yaml:"etcd"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level       string         `yaml:"level"`   // debug, info, warn, error
	Format      string         `yaml:"format"`  // console or json
	Outputs     []string       `yaml:"outputs"` // stdout, stderr, or file paths
	Rotation    RotationConfig `yaml:"rotation"`
	Development bool           `yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `yaml:"enable"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // serves /metrics
}

// Duration accepts Go duration strings ("150ms", "5s") in YAML.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns a Config populated with working defaults for a local setup.
func Default() *Config {
	cfg := &Config{
		Client: ClientConfig{
			Network:       "tcp",
			Address:       "127.0.0.1:9000",
			Service:       "echo",
			LoadBalancer:  "round_robin",
			Codec:         "framed",
			QueueSize:     64,
			InboundBuffer: 64,
			DialTimeout:   Duration{5 * time.Second},
			SendTimeout:   Duration{time.Second},
			Linger:        Duration{5 * time.Second},
		},
		Server: ServerConfig{
			Name:            "echo",
			Network:         "tcp",
			Address:         ":9000",
			Advertise:       "127.0.0.1:9000",
			Codec:           "framed",
			Burst:           100,
			HandlerTimeout:  Duration{5 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
			Weight:          1,
		},
		Registry: RegistryConfig{Type: "none"},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/rpc-duplex.log",
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 7,
			},
		},
		Metrics: MetricsConfig{Address: ":9100"},
	}
	cfg.Registry.Etcd.Endpoints = []string{"127.0.0.1:2379"}
	cfg.Registry.Etcd.DialTimeout = Duration{5 * time.Second}
	cfg.Registry.Etcd.LeaseTTL = 10
	return cfg
}

// Load reads the file at path over Default and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(validNetwork(c.Client.Network), "client.network: unsupported %q", c.Client.Network)
	check(validNetwork(c.Server.Network), "server.network: unsupported %q", c.Server.Network)
	if _, err := protocol.ByName(c.Client.Codec); err != nil {
		errs = append(errs, fmt.Errorf("client.codec: %w", err))
	}
	if _, err := protocol.ByName(c.Server.Codec); err != nil {
		errs = append(errs, fmt.Errorf("server.codec: %w", err))
	}
	check(c.Client.Address != "" || c.Registry.Type == "etcd", "client.address: required without a registry")
	check(c.Client.QueueSize > 0, "client.queue_size: must be positive, got %d", c.Client.QueueSize)
	check(c.Client.InboundBuffer >= 0, "client.inbound_buffer: must not be negative")
	check(c.Client.SendTimeout.Duration >= 0, "client.send_timeout: must not be negative")
	check(c.Server.RateLimit >= 0, "server.rate_limit: must not be negative")
	check(c.Server.RateLimit == 0 || c.Server.Burst > 0, "server.burst: must be positive when rate_limit is set")

	switch c.Registry.Type {
	case "", "none":
	case "etcd":
		check(len(c.Registry.Etcd.Endpoints) > 0, "registry.etcd.endpoints: required")
		check(c.Registry.Etcd.LeaseTTL > 0, "registry.etcd.lease_ttl: must be positive")
	default:
		check(false, "registry.type: unsupported %q", c.Registry.Type)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		check(false, "log.format: unsupported %q", c.Log.Format)
	}
	check(!c.Metrics.Enabled || c.Metrics.Address != "", "metrics.address: required when metrics are enabled")

	return errors.Join(errs...)
}

func validNetwork(network string) bool {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix", "quic":
		return true
	}
	return false
}
