// etcd keeps one key per VM with a TTL lease, so a VM that dies without deregistering
// disappears once its lease expires:
//
//	Key:   /mini-jdi/{app}/{addr}
//	Value: JSON-encoded VMInstance

package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/mini-jdi/"

func appPrefix(app string) string {
	return keyPrefix + app + "/"
}

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // safe for concurrent use
	logger *zap.Logger
}

type EtcdOption func(*clientv3.Config)

// WithEtcdLogger hands the logger to the etcd client as well.
func WithEtcdLogger(logger *zap.Logger) EtcdOption {
	return func(c *clientv3.Config) {
		c.Logger = logger
	}
}

func WithDialTimeout(d time.Duration) EtcdOption {
	return func(c *clientv3.Config) {
		c.DialTimeout = d
	}
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, opts ...EtcdOption) (*EtcdRegistry, error) {
	cfg := clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := clientv3.New(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

// Register stores the instance under a lease of ttl seconds and keeps renewing the
// lease in the background.
//
// The lease id stays local: several VMs may share one EtcdRegistry.
func (r *EtcdRegistry) Register(ctx context.Context, app string, instance VMInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, appPrefix(app)+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// The renewal outlives the registration call.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}

	go func() {
		for range ch {
		}
		r.logger.Debug("lease renewal stopped", zap.String("app", app), zap.String("addr", instance.Addr))
	}()
	return nil
}

// Deregister removes an instance; called on shutdown before the listener closes.
func (r *EtcdRegistry) Deregister(ctx context.Context, app string, addr string) error {
	_, err := r.client.Delete(ctx, appPrefix(app)+addr)
	return err
}

// Watch re-reads the instance list on every change under the app prefix.
func (r *EtcdRegistry) Watch(ctx context.Context, app string) <-chan []VMInstance {
	ch := make(chan []VMInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, appPrefix(app), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(ctx, app)
			if err != nil {
				r.logger.Warn("re-reading instances after watch event", zap.String("app", app), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns the instances currently registered for app.
func (r *EtcdRegistry) Discover(ctx context.Context, app string) ([]VMInstance, error) {
	resp, err := r.client.Get(ctx, appPrefix(app), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]VMInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance VMInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close releases the etcd client. Leases stop being renewed and expire.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
