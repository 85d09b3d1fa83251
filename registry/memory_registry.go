package registry

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryRegistry is a process-local Registry. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	apps     map[string]map[string]VMInstance
	watchers map[string][]chan []VMInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		apps:     make(map[string]map[string]VMInstance),
		watchers: make(map[string][]chan []VMInstance),
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, app string, instance VMInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.apps[app] == nil {
		r.apps[app] = make(map[string]VMInstance)
	}
	r.apps[app][instance.Addr] = instance
	r.notify(app)
	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, app string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.apps[app], addr)
	r.notify(app)
	return nil
}

func (r *MemoryRegistry) Discover(ctx context.Context, app string) ([]VMInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(app), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, app string) <-chan []VMInstance {
	ch := make(chan []VMInstance, 1)
	r.mu.Lock()
	r.watchers[app] = append(r.watchers[app], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[app] = slices.DeleteFunc(r.watchers[app], func(c chan []VMInstance) bool { return c == ch })
		close(ch)
	}()
	return ch
}

// list returns the instances of app sorted by address. Callers hold mu.
func (r *MemoryRegistry) list(app string) []VMInstance {
	addrs := slices.Sorted(maps.Keys(r.apps[app]))
	out := make([]VMInstance, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, r.apps[app][addr])
	}
	return out
}

// notify sends the latest list to every watcher, replacing an unread older list.
func (r *MemoryRegistry) notify(app string) {
	instances := r.list(app)
	for _, ch := range r.watchers[app] {
		select {
		case <-ch:
		default:
		}
		ch <- instances
	}
}
