package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetAddress())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "https://api.schiphol.nl/public-flights", cfg.Upstream.BaseURL)
	assert.Equal(t, 3, cfg.Upstream.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Upstream.Retry.InitialInterval)

	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 4*time.Minute, cfg.Cache.RefreshInterval)
	assert.Equal(t, 25*time.Second, cfg.Cache.ForegroundTimeout)
	assert.Equal(t, time.Minute, cfg.Cache.OccupancyTTL)

	assert.Equal(t, "KL", cfg.Pipeline.Airline)
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.InteractiveMaxAge)
	assert.Equal(t, 72*time.Hour, cfg.Pipeline.AnalyticalMaxAge)

	assert.False(t, cfg.Mirror.Enabled)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Mirror.Addresses)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SCHIPHOL_APP_ID", "app-id")
	t.Setenv("SCHIPHOL_APP_KEY", "app-key")
	t.Setenv("FD_SERVER_PORT", "9090")
	t.Setenv("FD_CACHE_TTL", "2m")
	t.Setenv("FD_PIPELINE_INTERACTIVE_MAX_AGE", "12h")
	t.Setenv("FD_UPSTREAM_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("FD_MIRROR_ENABLED", "true")
	t.Setenv("FD_MIRROR_ADDRESSES", "redis-a:6379, redis-b:6379")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "app-id", cfg.Upstream.AppID)
	assert.Equal(t, "app-key", cfg.Upstream.AppKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 12*time.Hour, cfg.Pipeline.InteractiveMaxAge)
	assert.Equal(t, 5, cfg.Upstream.Retry.MaxAttempts)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.Mirror.Addresses)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SCHIPHOL_APP_ID=from-dotenv\nSCHIPHOL_APP_KEY=secret\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SCHIPHOL_APP_ID")
		_ = os.Unsetenv("SCHIPHOL_APP_KEY")
	})

	cfg, err := Load(viper.New(), path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Upstream.AppID)
	assert.Equal(t, "secret", cfg.Upstream.AppKey)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("FD_SERVER_PORT", "0")

	_, err := Load(viper.New())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	cfg.Mirror.Enabled = true
	cfg.Mirror.Addresses = nil
	assert.Error(t, cfg.Validate())

	cfg.Mirror.Enabled = false
	cfg.Cache.OccupancyTTL = 0
	assert.Error(t, cfg.Validate())
}
