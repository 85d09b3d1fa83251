package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const sample = `
[target]
app = "shop"
balancer = "sticky"
sticky_key = "alice"
min_jdwp = ">= 1.4"

[registry]
endpoints = ["10.0.0.1:2379", "10.0.0.2:2379"]
dial_timeout = "2s"

[session]
default_stratum = "JSP"
keepalive = "30s"
rate_limit = 100

[log]
level = "debug"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Target.App)
	assert.Equal(t, "sticky", cfg.Target.Balancer)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, Duration(2*time.Second), cfg.Registry.DialTimeout)
	assert.Equal(t, "JSP", cfg.Session.DefaultStratum)
	assert.Equal(t, Duration(30*time.Second), cfg.Session.KeepAlive)
	assert.Equal(t, 100.0, cfg.Session.RateLimit)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Keys the file leaves out keep their defaults.
	assert.Equal(t, 50, cfg.Session.Burst)
	assert.Equal(t, 64, cfg.Session.EventBuffer)
	assert.Equal(t, Duration(10*time.Second), cfg.Session.Timeout)

	c, err := cfg.Target.VersionConstraint()
	require.NoError(t, err)
	assert.True(t, c.Check(semver.MustParse("1.8")))
	assert.False(t, c.Check(semver.MustParse("1.2")))
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "[target]\nport = 5005\n",
		"bad duration":     "[session]\nkeepalive = \"soon\"\n",
		"bad level":        "[log]\nlevel = \"loud\"\n",
		"bad balancer":     "[target]\nbalancer = \"fastest\"\n",
		"bad constraint":   "[target]\nmin_jdwp = \">= one\"\n",
		"negative limit":   "[session]\nrate_limit = -1\n",
		"not toml":         "[target\n",
		"wrong value type": "[session]\nburst = \"many\"\n",
	}
	for name, text := range cases {
		_, err := Parse([]byte(text))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(dir, "jdictl.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "shop", cfg.Target.App)

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = 3\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, path)
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	data, err := cfg.Encode()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLogger(t *testing.T) {
	logger, err := Log{Level: "warn"}.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestSessionOptions(t *testing.T) {
	opts := Session{RateLimit: 10, DefaultStratum: "JSP", EventBuffer: 8}.Options(zap.NewNop())
	// logger, middleware, keepalive, stratum, event buffer
	assert.Len(t, opts, 5)
	assert.Len(t, Session{}.Options(zap.NewNop()), 3)
}
