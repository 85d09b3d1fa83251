// Package client attaches debuggers to VMs found through a registry.
//
// A Client discovers the instances an application registered, narrows them to those a
// debugger can use, lets a balancer pick one and opens a jdi.Session to it. Instance
// lists are cached per application and kept fresh by a registry watch.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"mini-jdi/jdi"
	"mini-jdi/loadbalance"
	"mini-jdi/registry"
)

type Client struct {
	registry   registry.Registry // find VM instances from registry
	balancer   loadbalance.Balancer
	logger     *zap.Logger
	constraint *semver.Constraints
	sessOpts   []jdi.Option

	mu        sync.Mutex
	instances map[string][]registry.VMInstance // cached instance list for each app
	watches   map[string]context.CancelFunc
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithVersionConstraint only attaches to VMs whose JDWP version satisfies constraint.
func WithVersionConstraint(constraint *semver.Constraints) Option {
	return func(c *Client) {
		c.constraint = constraint
	}
}

// WithSessionOptions passes options to every session the client opens.
func WithSessionOptions(opts ...jdi.Option) Option {
	return func(c *Client) {
		c.sessOpts = append(c.sessOpts, opts...)
	}
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	c := &Client{
		registry:  reg,
		balancer:  bal,
		logger:    zap.NewNop(),
		instances: make(map[string][]registry.VMInstance),
		watches:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Instances returns the usable instances of app. The first call per app queries the
// registry and starts a watch; later calls read the cache.
func (c *Client) Instances(ctx context.Context, app string) ([]registry.VMInstance, error) {
	c.mu.Lock()
	cached, ok := c.instances[app]
	c.mu.Unlock()
	if ok {
		return loadbalance.FilterByVersion(cached, c.constraint), nil
	}

	instances, err := c.registry.Discover(ctx, app)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, watching := c.watches[app]; !watching {
		c.instances[app] = instances
		watchCtx, cancel := context.WithCancel(context.Background())
		c.watches[app] = cancel
		go c.watch(watchCtx, app)
	}
	c.mu.Unlock()
	return loadbalance.FilterByVersion(instances, c.constraint), nil
}

func (c *Client) watch(ctx context.Context, app string) {
	for instances := range c.registry.Watch(ctx, app) {
		c.mu.Lock()
		c.instances[app] = instances
		c.mu.Unlock()
		c.logger.Debug("instance list changed", zap.String("app", app), zap.Int("count", len(instances)))
	}
}

// Attach picks an instance of app and attaches to it.
func (c *Client) Attach(ctx context.Context, app string) (*jdi.Session, error) {
	instances, err := c.Instances(ctx, app)
	if err != nil {
		return nil, err
	}

	// Select an instance using load balancer
	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", app, err)
	}

	c.logger.Info("attaching",
		zap.String("app", app),
		zap.String("addr", instance.Addr),
		zap.String("balancer", c.balancer.Name()))
	opts := append([]jdi.Option{jdi.WithLogger(c.logger)}, c.sessOpts...)
	s, err := jdi.Attach(ctx, instance.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("client: attaching to %s: %w", instance.Addr, err)
	}
	return s, nil
}

// Close stops the registry watches. Sessions already opened stay open.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for app, cancel := range c.watches {
		cancel()
		delete(c.watches, app)
	}
}
