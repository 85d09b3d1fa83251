// Package registry lets target VMs advertise their debug ports and debuggers find them.
//
// A VM that opened a JDWP listener registers a VMInstance under an application name;
// debuggers discover the instances of that application and attach to one of them.
package registry

import "context"

// VMInstance describes one debuggable VM.
type VMInstance struct {
	Addr    string // host:port of the JDWP listener
	Weight  int    // relative share when a balancer picks among instances
	Version string // JDWP version, e.g. "1.8"
	VMName  string `json:",omitempty"`
}

type Registry interface {
	Register(ctx context.Context, app string, instance VMInstance, ttl int64) error
	Deregister(ctx context.Context, app string, addr string) error
	Discover(ctx context.Context, app string) ([]VMInstance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, app string) <-chan []VMInstance
}
