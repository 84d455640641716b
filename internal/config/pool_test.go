package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"MERGEQ_CORE_WORKERS",
	"MERGEQ_MAX_WORKERS",
	"MERGEQ_KEEP_ALIVE",
	"MERGEQ_START_RATE",
	"MERGEQ_START_BURST",
	"MERGEQ_ORDER",
}

// clearEnv unsets all MERGEQ_* variables for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 4, cfg.CoreWorkers)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, time.Duration(0), cfg.KeepAlive)
	assert.Equal(t, "fifo", cfg.Order)
	assert.True(t, cfg.Fixed())
	require.NoError(t, cfg.Validate())
}

func TestCachedPoolConfig(t *testing.T) {
	cfg := CachedPoolConfig()

	assert.Equal(t, 0, cfg.CoreWorkers)
	assert.Greater(t, cfg.MaxWorkers, 1)
	assert.Equal(t, 60*time.Second, cfg.KeepAlive)
	assert.False(t, cfg.Fixed())
	require.NoError(t, cfg.Validate())
}

func TestPoolConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*PoolConfig)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *PoolConfig) {},
		},
		{
			name: "single worker",
			modify: func(c *PoolConfig) {
				c.CoreWorkers = 1
				c.MaxWorkers = 1
			},
		},
		{
			name: "no core workers",
			modify: func(c *PoolConfig) {
				c.CoreWorkers = 0
				c.MaxWorkers = 8
				c.KeepAlive = time.Second
			},
		},
		{
			name:    "negative core workers",
			modify:  func(c *PoolConfig) { c.CoreWorkers = -1 },
			wantErr: "core_workers must be between",
		},
		{
			name: "too many core workers",
			modify: func(c *PoolConfig) {
				c.CoreWorkers = MaxCoreWorkers + 1
				c.MaxWorkers = MaxPoolWorkers
			},
			wantErr: "core_workers must be between",
		},
		{
			name: "zero max workers",
			modify: func(c *PoolConfig) {
				c.CoreWorkers = 0
				c.MaxWorkers = 0
			},
			wantErr: "max_workers must be between",
		},
		{
			name:    "max below core",
			modify:  func(c *PoolConfig) { c.MaxWorkers = 2 },
			wantErr: "must be >= core_workers",
		},
		{
			name:    "negative keep alive",
			modify:  func(c *PoolConfig) { c.KeepAlive = -time.Second },
			wantErr: "keep_alive cannot be negative",
		},
		{
			name:    "negative start rate",
			modify:  func(c *PoolConfig) { c.StartRate = -1 },
			wantErr: "start_rate cannot be negative",
		},
		{
			name: "rate without burst",
			modify: func(c *PoolConfig) {
				c.StartRate = 10
				c.StartBurst = 0
			},
			wantErr: "start_burst must be at least 1",
		},
		{
			name: "burst ignored without rate",
			modify: func(c *PoolConfig) {
				c.StartRate = 0
				c.StartBurst = 0
			},
		},
		{
			name:   "lifo order",
			modify: func(c *PoolConfig) { c.Order = "LIFO" },
		},
		{
			name:   "empty order",
			modify: func(c *PoolConfig) { c.Order = "" },
		},
		{
			name:    "unknown order",
			modify:  func(c *PoolConfig) { c.Order = "random" },
			wantErr: "order must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPoolConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPoolConfigString(t *testing.T) {
	cfg := CachedPoolConfig()
	s := cfg.String()

	for _, want := range []string{"CoreWorkers: 0", "MaxWorkers: 256", "KeepAlive: 1m0s", "Order: fifo"} {
		assert.Contains(t, s, want)
	}

	cfg.Order = ""
	assert.Contains(t, cfg.String(), "Order: fifo")
}

func TestPoolConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := PoolConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, DefaultPoolConfig(), cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MERGEQ_CORE_WORKERS", "2")
		t.Setenv("MERGEQ_MAX_WORKERS", "10")
		t.Setenv("MERGEQ_KEEP_ALIVE", "15s")
		t.Setenv("MERGEQ_START_RATE", "2.5")
		t.Setenv("MERGEQ_START_BURST", "3")
		t.Setenv("MERGEQ_ORDER", "lifo")

		cfg, err := PoolConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.CoreWorkers)
		assert.Equal(t, 10, cfg.MaxWorkers)
		assert.Equal(t, 15*time.Second, cfg.KeepAlive)
		assert.InDelta(t, 2.5, cfg.StartRate, 1e-9)
		assert.Equal(t, 3, cfg.StartBurst)
		assert.Equal(t, "lifo", cfg.Order)
	})

	invalid := []struct {
		key, value string
	}{
		{"MERGEQ_CORE_WORKERS", "many"},
		{"MERGEQ_MAX_WORKERS", "1.5"},
		{"MERGEQ_KEEP_ALIVE", "forever"},
		{"MERGEQ_START_RATE", "fast"},
		{"MERGEQ_START_BURST", "x"},
	}
	for _, tc := range invalid {
		t.Run("invalid "+tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := PoolConfigFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}

	t.Run("fails validation", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MERGEQ_MAX_WORKERS", "1")

		_, err := PoolConfigFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid pool configuration from environment")
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("partial file keeps defaults", func(t *testing.T) {
		clearEnv(t)
		path := write("partial.yaml", "pool:\n  max_workers: 16\n  keep_alive: 30s\n  order: lifo\n")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.CoreWorkers)
		assert.Equal(t, 16, cfg.MaxWorkers)
		assert.Equal(t, 30*time.Second, cfg.KeepAlive)
		assert.Equal(t, "lifo", cfg.Order)
	})

	t.Run("empty file", func(t *testing.T) {
		clearEnv(t)
		path := write("empty.yaml", "")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultPoolConfig(), cfg)
	})

	t.Run("env wins over file", func(t *testing.T) {
		clearEnv(t)
		path := write("env.yaml", "pool:\n  core_workers: 1\n  max_workers: 1\n")
		t.Setenv("MERGEQ_MAX_WORKERS", "3")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.CoreWorkers)
		assert.Equal(t, 3, cfg.MaxWorkers)
	})

	t.Run("unknown key", func(t *testing.T) {
		clearEnv(t)
		path := write("unknown.yaml", "pool:\n  workers: 3\n")

		_, err := LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		clearEnv(t)
		path := write("invalid.yaml", "pool:\n  core_workers: 8\n  max_workers: 2\n")

		_, err := LoadFile(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "failed to read config file"))
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := CachedPoolConfig()
	cfg.StartRate = 5
	cfg.StartBurst = 2

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "keep_alive: 1m0s")

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
