package transport

import (
	"context"

	"rpc-duplex/loadbalance"
	"rpc-duplex/registry"
)

// Discovery resolves a service name to one instance address.
type Discovery struct {
	Registry registry.Registry
	Balancer loadbalance.Balancer
}

// ConnectService discovers the instances of service, picks one with the balancer (key is
// passed through for key-affine balancers) and connects to it. The instance's network, if
// registered, is applied before opts, so callers can still override it.
func ConnectService(ctx context.Context, d Discovery, service, key string, opts ...Option) (*Channel, error) {
	instances, err := d.Registry.Discover(ctx, service)
	if err != nil {
		return nil, &ConnectError{Network: "discovery", Address: service, Err: err}
	}
	instance, err := d.Balancer.Pick(key, instances)
	if err != nil {
		return nil, &ConnectError{Network: "discovery", Address: service, Err: err}
	}

	if instance.Network != "" {
		opts = append([]Option{WithNetwork(instance.Network)}, opts...)
	}
	return Connect(ctx, instance.Addr, opts...)
}
