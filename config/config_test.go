package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"STORAGE_BACKEND", "CART_KEY", "REDIS_HOST", "REDIS_PORT",
	"DATABASE_HOST", "DATABASE_PORT", "DATABASE_USER", "DATABASE_PASSWORD", "DATABASE_NAME",
	"CATALOG_DRIVER", "CATALOG_DSN", "TAX_RATE", "HTTP_ADDR", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coopstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "0.08", cfg.TaxRate().String())
	assert.Equal(t, 720*time.Hour, cfg.RedisTTL())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  backend: redis
  key: cart:kiosk
  redis:
    addr: cache:6380
    ttl: 48h
catalog:
  driver: postgres
  dsn: postgres://coop@db/coop
pricing:
  tax_rate: "0.0725"
logging:
  level: debug
  development: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "cart:kiosk", cfg.Storage.Key)
	assert.Equal(t, "cache:6380", cfg.Storage.Redis.Addr)
	assert.Equal(t, "coopstore:storage", cfg.Storage.Redis.Channel, "unset keys keep defaults")
	assert.Equal(t, 48*time.Hour, cfg.RedisTTL())
	assert.Equal(t, DriverPostgres, cfg.Catalog.Driver)
	assert.Equal(t, "0.0725", cfg.TaxRate().String())
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"syntax":          "storage: [",
		"backend":         "storage:\n  backend: floppy\n",
		"driver":          "catalog:\n  driver: mysql\n",
		"tax rate":        "pricing:\n  tax_rate: lots\n",
		"negative tax":    "pricing:\n  tax_rate: \"-0.1\"\n",
		"empty key":       "storage:\n  key: \"\"\n",
		"file needs dir":  "storage:\n  backend: file\n  dir: \"\"\n",
		"redis needs one": "storage:\n  backend: redis\n  redis:\n    addr: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Run("redis host and port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REDIS_HOST", "redis")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)

		t.Setenv("REDIS_PORT", "7000")
		cfg.applyEnvOverrides()
		assert.Equal(t, "redis:7000", cfg.Storage.Redis.Addr)
	})

	t.Run("database variables select postgres", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_HOST", "db")
		t.Setenv("DATABASE_PORT", "5432")
		t.Setenv("DATABASE_USER", "coop")
		t.Setenv("DATABASE_PASSWORD", "secret")
		t.Setenv("DATABASE_NAME", "store")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, DriverPostgres, cfg.Catalog.Driver)
		assert.Equal(t, "postgres://coop:secret@db:5432/store?sslmode=disable", cfg.Catalog.DSN)
	})

	t.Run("CATALOG_DSN wins over DATABASE_HOST", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_HOST", "db")
		t.Setenv("CATALOG_DSN", "postgres://elsewhere/store")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "postgres://elsewhere/store", cfg.Catalog.DSN)
	})

	t.Run("environment beats the file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STORAGE_BACKEND", "memory")
		t.Setenv("TAX_RATE", "0.05")
		t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
		cfg, err := Load(writeConfig(t, "storage:\n  backend: sqlite\npricing:\n  tax_rate: \"0.2\"\n"))
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, cfg.Storage.Backend)
		assert.Equal(t, "0.05", cfg.TaxRate().String())
		assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	})
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Redis.TTL = ""
	cfg.Server.ReadTimeout = "nope"
	assert.Zero(t, cfg.RedisTTL())
	assert.Equal(t, 15*time.Second, cfg.GetReadTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetWriteTimeout())
}
