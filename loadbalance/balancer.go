// Package loadbalance picks which message server instance a new connection goes to.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances, key ignored
//   - WeightedRandom:  heterogeneous instances (different CPU/memory), key ignored
//   - ConsistentHash:  key affinity, the same key keeps landing on the same instance
package loadbalance

import (
	"errors"
	"fmt"

	"rpc-duplex/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer is the interface for load balancing strategies. Pick is called once per
// connection attempt and must be goroutine-safe.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/config).
	Name() string
}

// ByName returns a new balancer for "round_robin", "weighted_random" or "consistent_hash".
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("unknown load balancer %q", name)
}
