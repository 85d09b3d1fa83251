// Package loadbalance picks which VM a debugger attaches to when an application runs
// several debuggable instances.
//
// Three strategies are implemented:
//   - RoundRobin:      spread debug sessions evenly
//   - WeightedRandom:  favor instances registered with a higher weight
//   - ConsistentHash:  keep a user on the same instance across sessions
package loadbalance

import (
	"errors"

	"mini-jdi/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one VM instance. Implementations must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.VMInstance) (*registry.VMInstance, error)

	// Name returns the strategy name for logs and configuration.
	Name() string
}

// New returns the balancer for a configured strategy name. key feeds ConsistentHash
// and is ignored by the others.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "roundrobin", "RoundRobin":
		return &RoundRobinBalancer{}, nil
	case "weighted", "WeightedRandom":
		return &WeightedRandomBalancer{}, nil
	case "sticky", "ConsistentHash":
		return NewConsistentHashBalancer(key), nil
	}
	return nil, errors.New("loadbalance: unknown strategy " + name)
}
