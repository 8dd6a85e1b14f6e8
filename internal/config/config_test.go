package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "radar.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "decs", cfg.Server.Namespace)
		assert.Equal(t, "radar", cfg.Radar.SystemName)
		assert.Equal(t, uint32(1), cfg.Radar.Framerate)
		assert.Equal(t, 30*time.Second, cfg.Radar.RemovedTTL)
		assert.Equal(t, 30, cfg.Reset.Every)
	})
	t.Run("file overrides defaults", func(t *testing.T) {
		p := writeConfig(t, `
[server]
namespace = "galaxy"

[store]
driver = "memory"

[bus]
reconnect_wait = "5s"

[scheduler]
shards = ["the_void", "shard-two"]
`)
		cfg, err := Load(p)
		require.NoError(t, err)
		assert.Equal(t, "galaxy", cfg.Server.Namespace)
		assert.Equal(t, "memory", cfg.Store.Driver)
		assert.Equal(t, 5*time.Second, cfg.Bus.ReconnectWait)
		assert.Equal(t, []string{"the_void", "shard-two"}, cfg.Scheduler.Shards)
		assert.Equal(t, 20, cfg.Store.MaxOpenConns, "untouched keys keep defaults")
	})
	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("STACKTRADER_NATS_URL", "nats://bus:4222")
		t.Setenv("STACKTRADER_STORE_DRIVER", "memory")
		cfg, err := Load(writeConfig(t, "[bus]\nurl = \"nats://file:4222\"\n"))
		require.NoError(t, err)
		assert.Equal(t, "nats://bus:4222", cfg.Bus.URL)
		assert.Equal(t, "memory", cfg.Store.Driver)
	})
	t.Run("environment shard list", func(t *testing.T) {
		t.Setenv("STACKTRADER_SHARDS", "a,b")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, cfg.Scheduler.Shards)
	})
	t.Run("reset needs an interval", func(t *testing.T) {
		_, err := Load(writeConfig(t, "[reset]\nevery = 0\n"))
		assert.Error(t, err)
	})
	t.Run("unknown driver", func(t *testing.T) {
		_, err := Load(writeConfig(t, "[store]\ndriver = \"redis\"\n"))
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}
