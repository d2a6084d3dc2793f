// Package registry records which message servers serve which service, so clients can
// resolve a service name to an address before connecting.
package registry

import "context"

// ServiceInstance is one reachable message server.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Network string `json:"network,omitempty"` // "tcp", "unix" or "quic"; empty means tcp
	Weight  int    `json:"weight,omitempty"`  // Weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
