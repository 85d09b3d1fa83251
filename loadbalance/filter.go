package loadbalance

import (
	"github.com/Masterminds/semver/v3"

	"mini-jdi/registry"
)

// FilterByVersion keeps the instances whose JDWP version satisfies constraint, e.g.
// ">= 1.4" for debuggers that need source maps. Instances with an unparsable version
// are dropped; a nil constraint keeps everything.
func FilterByVersion(instances []registry.VMInstance, constraint *semver.Constraints) []registry.VMInstance {
	if constraint == nil {
		return instances
	}
	out := make([]registry.VMInstance, 0, len(instances))
	for _, inst := range instances {
		v, err := semver.NewVersion(inst.Version)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			out = append(out, inst)
		}
	}
	return out
}
