package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Service.HTTPPort)
	assert.Equal(t, "confirmed", cfg.Chain.Commitment)
	assert.Equal(t, StoreFile, cfg.Store.Kind)
	assert.Equal(t, time.Minute, cfg.Auth.ClockSkew)
	assert.Equal(t, log.InfoLevel, cfg.Service.LogLevel)
	assert.Zero(t, cfg.Chain.ComputeUnitPrice)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ESCROW_HTTP_PORT", "8080")
	t.Setenv("ESCROW_COMMITMENT", "finalized")
	t.Setenv("ESCROW_AUTH_CLOCK_SKEW", "30s")
	t.Setenv("ESCROW_IDEMPOTENCY_STORE", "memory")
	t.Setenv("ESCROW_COMPUTE_UNIT_PRICE", "5000")
	t.Setenv("ESCROW_COMPUTE_UNIT_LIMIT", "200000")
	t.Setenv("ESCROW_LOG_LEVEL", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, "finalized", cfg.Chain.Commitment)
	assert.Equal(t, 30*time.Second, cfg.Auth.ClockSkew)
	assert.Equal(t, StoreMemory, cfg.Store.Kind)
	assert.Equal(t, uint64(5000), cfg.Chain.ComputeUnitPrice)
	assert.Equal(t, uint32(200000), cfg.Chain.ComputeUnitLimit)
	assert.Equal(t, log.DebugLevel, cfg.Service.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT: 9100\nREFRESH_INTERVAL: 5s\n"), 0o600))
	t.Setenv("ESCROW_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Service.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.Service.RefreshInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"ESCROW_COMMITMENT":        "eventually",
		"ESCROW_IDEMPOTENCY_STORE": "redis",
		"ESCROW_LOG_LEVEL":         "loud",
		"ESCROW_HTTP_PORT":         "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	t.Setenv("ESCROW_IDEMPOTENCY_STORE", "postgres")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("ESCROW_POSTGRES_DSN", "postgres://escrow@localhost/escrow")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store.Kind)
}
