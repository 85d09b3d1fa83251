package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"mini-jdi/registry"
)

// ConsistentHashBalancer sends one key, typically the user name, to the same instance
// for as long as that instance stays registered. Each instance owns replicas virtual
// nodes on a crc32 ring so keys spread evenly.
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu    sync.Mutex
	addrs string   // instance set the ring was built from
	ring  []uint32 // sorted
	nodes map[uint32]string
}

func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{key: key, replicas: 100}
}

// rebuild places every instance on the ring. Callers hold mu.
func (b *ConsistentHashBalancer) rebuild(addrs []string) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]string, len(addrs)*b.replicas)
	for _, addr := range addrs {
		for i := range b.replicas {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = addr
		}
	}
	slices.Sort(b.ring)
}

// Pick returns the instance owning the balancer's key. The ring is rebuilt only when
// the instance set changes.
func (b *ConsistentHashBalancer) Pick(instances []registry.VMInstance) (*registry.VMInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	set := strings.Join(addrs, ",")

	b.mu.Lock()
	if set != b.addrs {
		b.rebuild(addrs)
		b.addrs = set
	}
	hash := crc32.ChecksumIEEE([]byte(b.key))
	// First node clockwise from the key, wrapping to the start of the ring.
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	addr := b.nodes[b.ring[idx]]
	b.mu.Unlock()

	for i := range instances {
		if instances[i].Addr == addr {
			return &instances[i], nil
		}
	}
	return nil, ErrNoInstances
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
