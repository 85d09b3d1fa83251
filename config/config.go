// Package config loads the TOML configuration shared by jdictl and fakevm.
//
//	[target]
//	addr = "127.0.0.1:5005"   # attach directly; when empty the registry is used
//	app = "shop"
//	balancer = "sticky"       # roundrobin | weighted | sticky
//	sticky_key = "alice"
//	min_jdwp = ">= 1.4"
//
//	[registry]
//	endpoints = ["127.0.0.1:2379"]
//	dial_timeout = "5s"
//
//	[session]
//	default_stratum = "JSP"
//	keepalive = "30s"
//	rate_limit = 200          # commands per second, 0 disables
//	burst = 50
//	event_buffer = 64
//	timeout = "10s"
//
//	[log]
//	level = "info"
//	development = false
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mini-jdi/jdi"
	"mini-jdi/loadbalance"
	"mini-jdi/middleware"
	"mini-jdi/registry"
)

// Duration is a time.Duration written as a Go duration string ("250ms", "5s").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	Target   Target   `toml:"target"`
	Registry Registry `toml:"registry"`
	Session  Session  `toml:"session"`
	Log      Log      `toml:"log"`
}

type Target struct {
	Addr      string `toml:"addr"`
	App       string `toml:"app"`
	Balancer  string `toml:"balancer"`
	StickyKey string `toml:"sticky_key"`
	MinJDWP   string `toml:"min_jdwp"`
}

type Registry struct {
	Endpoints   []string `toml:"endpoints"`
	DialTimeout Duration `toml:"dial_timeout"`
}

type Session struct {
	DefaultStratum string   `toml:"default_stratum"`
	KeepAlive      Duration `toml:"keepalive"`
	RateLimit      float64  `toml:"rate_limit"`
	Burst          int      `toml:"burst"`
	EventBuffer    int      `toml:"event_buffer"`
	Timeout        Duration `toml:"timeout"`
}

type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Target: Target{
			App:      "fakevm",
			Balancer: "roundrobin",
		},
		Registry: Registry{
			Endpoints:   []string{"127.0.0.1:2379"},
			DialTimeout: Duration(5 * time.Second),
		},
		Session: Session{
			Burst:       50,
			EventBuffer: 64,
			Timeout:     Duration(10 * time.Second),
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result. Unknown keys are
// errors.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("config: line %d column %d: %w", row, col, err)
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if _, err := loadbalance.New(c.Target.Balancer, c.Target.StickyKey); err != nil {
		return fmt.Errorf("config: target.balancer: %w", err)
	}
	if _, err := c.Target.VersionConstraint(); err != nil {
		return fmt.Errorf("config: target.min_jdwp: %w", err)
	}
	if c.Session.RateLimit < 0 || c.Session.Burst < 0 || c.Session.EventBuffer < 0 {
		return errors.New("config: session limits must not be negative")
	}
	return nil
}

// Encode writes the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// VersionConstraint parses min_jdwp. An empty value means no constraint.
func (t Target) VersionConstraint() (*semver.Constraints, error) {
	if t.MinJDWP == "" {
		return nil, nil
	}
	return semver.NewConstraint(t.MinJDWP)
}

// Logger builds the zap logger described by the [log] section.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Options turns the [session] section into session options. Every command is logged and,
// with a positive rate_limit, throttled.
func (s Session) Options(logger *zap.Logger) []jdi.Option {
	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if s.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(s.RateLimit, max(s.Burst, 1)))
	}
	opts := []jdi.Option{
		jdi.WithLogger(logger),
		jdi.WithMiddleware(mws...),
		jdi.WithKeepAlive(time.Duration(s.KeepAlive)),
	}
	if s.DefaultStratum != "" {
		opts = append(opts, jdi.WithDefaultStratum(s.DefaultStratum))
	}
	if s.EventBuffer > 0 {
		opts = append(opts, jdi.WithEventBuffer(s.EventBuffer))
	}
	return opts
}

// Open connects to the etcd cluster of the [registry] section.
func (r Registry) Open(logger *zap.Logger) (*registry.EtcdRegistry, error) {
	return registry.NewEtcdRegistry(r.Endpoints,
		registry.WithEtcdLogger(logger),
		registry.WithDialTimeout(time.Duration(r.DialTimeout)))
}
