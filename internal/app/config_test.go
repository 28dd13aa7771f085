package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-console/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 8.0, cfg.DeadlineHoursPerDay)
	require.Equal(t, 4, cfg.BatchConcurrency)
	require.Equal(t, 24*time.Hour, cfg.BatchResultTTL)
	require.Equal(t, "*/15 * * * *", cfg.PermissionWarmupCron)
	require.Equal(t, "info", cfg.LogLevel)
	require.EqualValues(t, 10, cfg.PGMaxConns)
	require.Equal(t, "test", cfg.AppEnv)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DEADLINE_HOURS_PER_DAY", "7.5")
	t.Setenv("LOG_FORMAT", "json")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 7.5, cfg.DeadlineHoursPerDay)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"log format":     {"LOG_FORMAT", "xml"},
		"log level":      {"LOG_LEVEL", "loud"},
		"pool size":      {"PG_MAX_CONNS", "0"},
		"hours per day":  {"DEADLINE_HOURS_PER_DAY", "0"},
		"concurrency":    {"BATCH_CONCURRENCY", "-1"},
		"rate limit":     {"RATE_LIMIT_PER_MINUTE", "0"},
		"not a duration": {"BATCH_RESULT_TTL", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BATCH_CONCURRENCY=9\nREDIS_ADDR=redis:6379\n"), 0o600))
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Cleanup(func() { _ = os.Unsetenv("BATCH_CONCURRENCY") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 9, cfg.BatchConcurrency)
	require.Equal(t, "cache:6380", cfg.RedisAddr)
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
	require.True(t, SkipStartup("config-test"))
}
