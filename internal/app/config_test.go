package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, StoreMemory, cfg.StoreDriver)
	require.Equal(t, LockLocal, cfg.LockBackend)
	require.Equal(t, 3, cfg.TxMaxRetries)
	require.Equal(t, "default", cfg.LooseDefaultOwner)
	require.Equal(t, 10*time.Second, cfg.LockTTL)
	require.False(t, cfg.IsProduction())
	require.False(t, cfg.NeedsRedis())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Postgres ")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TTL", "3s")
	t.Setenv("APP_ENV", "production")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.StoreDriver)
	require.Equal(t, 3*time.Second, cfg.LockTTL)
	require.Equal(t, 30, cfg.RateLimitPerMinute)
	require.True(t, cfg.IsProduction())
	require.True(t, cfg.NeedsRedis())
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{StoreDriver: StoreMemory, LockBackend: LockLocal, LockTTL: time.Second, TxMaxRetries: 3, LooseDefaultOwner: "default"}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = StorePostgres; c.PGDSN = "" }, "PG_DSN"},
		{"unknown lock", func(c *Config) { c.LockBackend = "etcd" }, "LOCK_BACKEND"},
		{"redis lock without ttl", func(c *Config) { c.LockBackend = LockRedis; c.LockTTL = 0 }, "LOCK_TTL"},
		{"no retries", func(c *Config) { c.TxMaxRetries = 0 }, "TX_MAX_RETRIES"},
		{"blank owner", func(c *Config) { c.LooseDefaultOwner = "  " }, "LOOSE_DEFAULT_OWNER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.errMsg)
		})
	}
	cfg := valid()
	require.NoError(t, cfg.Validate())
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"k":"v"`)
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	require.False(t, InTestMode())
}
