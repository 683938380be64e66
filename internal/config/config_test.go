package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, yaml string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.unit.yaml"), []byte(yaml), 0o644))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "unit")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("release", cfg.Mode)
	req.Equal(8080, cfg.Port)
	req.Equal("insecure", cfg.Auth.Mode)
	req.Equal("memory", cfg.Store.Driver)
	req.Empty(cfg.Cluster.NatsURL)
	req.Equal(64, cfg.Socket.SendBuffer)
	req.Equal(30*time.Second, cfg.Presence.TTL)
	req.Equal(15*time.Second, cfg.Presence.Sweep)
	req.Equal(8, cfg.Calls.Capacity)
	req.Equal(2*time.Minute, cfg.Fanout.Window)
	req.Equal(3, cfg.Fanout.Retries)
	req.Equal(16384, cfg.Fanout.MaxPayload)
}

func TestLoadReadsFileAndClampsSweep(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "unit")

	writeConfigFile(t, dir, `
mode: debug
port: 9999
auth:
  mode: jwt
  secret: sekret
  issuer: pulse
store:
  driver: badger
  badger_dir: /tmp/pulse-data
presence:
  ttl: 40s
  sweep: 5s
fanout:
  window: 90s
  retries: 5
`)

	cfg, err := Load()
	req.NoError(err)
	req.Equal("debug", cfg.Mode)
	req.Equal(9999, cfg.Port)
	req.Equal("jwt", cfg.Auth.Mode)
	req.Equal("sekret", cfg.Auth.Secret)
	req.Equal("badger", cfg.Store.Driver)
	req.Equal("/tmp/pulse-data", cfg.Store.BadgerDir)
	req.Equal(40*time.Second, cfg.Presence.TTL)
	// 5s is finer than half the ttl, the loader lifts it
	req.Equal(20*time.Second, cfg.Presence.Sweep)
	req.Equal(90*time.Second, cfg.Fanout.Window)
	req.Equal(5, cfg.Fanout.Retries)
	// keys the file leaves alone keep their defaults
	req.Equal(64, cfg.Socket.SendBuffer)
	req.Equal(8*time.Second, cfg.Typing.Clear)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"jwt without secret":      "auth:\n  mode: jwt\n",
		"unknown store driver":    "store:\n  driver: redis\n",
		"postgres without dsn":    "store:\n  driver: postgres\n",
		"sub-second presence ttl": "presence:\n  ttl: 100ms\n",
		"zero fanout retries":     "fanout:\n  retries: 0\n",
		"single-seat calls":       "calls:\n  capacity: 1\n",
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			dir := t.TempDir()
			t.Chdir(dir)
			t.Setenv("CONFIG_ENV", "unit")
			writeConfigFile(t, dir, yaml)

			_, err := Load()
			req.Error(err)
			req.Contains(err.Error(), "invalid config")
		})
	}
}
