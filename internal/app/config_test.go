package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.True(t, cfg.LedgerStrict)
	require.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)
	require.Equal(t, 15*time.Minute, cfg.RolloverLockTTL)
	require.Equal(t, 5, cfg.WorkerConcurrency)
	require.Equal(t, "30 1 * * *", cfg.IntegrityCron)
	require.Equal(t, ":9091", cfg.WorkerMetricsAddr)

	tol, err := cfg.Tolerance()
	require.NoError(t, err)
	require.Equal(t, "0.01", tol.String())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GL_TEST_ONLY=1\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("GL_TEST_ONLY") })
	t.Setenv("ROLLOVER_LOCK_TTL", "2m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "1", os.Getenv("GL_TEST_ONLY"))
	require.Equal(t, 2*time.Minute, cfg.RolloverLockTTL)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Setenv("LEDGER_TOLERANCE", "abc")
	_, err := LoadConfig(missing)
	require.ErrorContains(t, err, "LEDGER_TOLERANCE")

	t.Setenv("LEDGER_TOLERANCE", "-0.5")
	_, err = LoadConfig(missing)
	require.ErrorContains(t, err, "must not be negative")

	t.Setenv("LEDGER_TOLERANCE", "0.01")
	t.Setenv("WORKER_CONCURRENCY", "0")
	_, err = LoadConfig(missing)
	require.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
}
