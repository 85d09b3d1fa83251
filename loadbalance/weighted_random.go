package loadbalance

import (
	"math/rand/v2"

	"mini-jdi/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to its weight.
// Instances registered without a weight count as weight 1.
type WeightedRandomBalancer struct{}

func weight(inst registry.VMInstance) int {
	return max(inst.Weight, 1)
}

func (b *WeightedRandomBalancer) Pick(instances []registry.VMInstance) (*registry.VMInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	total := 0
	for _, inst := range instances {
		total += weight(inst)
	}

	r := rand.IntN(total)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
