package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"OCRDESK_API_BASE_URL", "OCRDESK_CLIENT_TIMEOUT", "OCRDESK_JOB_CAPACITY", "OCRDESK_STORE", "OCRDESK_ADVANCE_MODE"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Equal(t, 2*time.Minute, cfg.ClientTimeout)
	assert.Equal(t, 20, cfg.JobCapacity)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 120, cfg.PollMaxAttempts)
	assert.Equal(t, 550*time.Millisecond, cfg.SimulateInterval)
	assert.Equal(t, 4*time.Second, cfg.ToastTTL)
	assert.Equal(t, "auto", cfg.AdvanceMode)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, ":8585", cfg.ListenAddr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OCRDESK_API_BASE_URL", "http://ocr.internal:9000/")
	t.Setenv("OCRDESK_CLIENT_TIMEOUT", "30s")
	t.Setenv("OCRDESK_POLL_INTERVAL", "not-a-duration")
	t.Setenv("OCRDESK_JOB_CAPACITY", "-3")
	t.Setenv("OCRDESK_SERVER_PORT", "9090")
	t.Setenv("OCRDESK_STORE", "Postgres")
	t.Setenv("OCRDESK_LOG_LEVEL", "warning")

	cfg := Load()
	assert.Equal(t, "http://ocr.internal:9000", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.ClientTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval, "invalid durations fall back")
	assert.Equal(t, 20, cfg.JobCapacity, "non-positive numbers fall back")
	assert.Equal(t, ":9090", cfg.ListenAddr())
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OCRDESK_TOAST_TTL=9s\nOCRDESK_ADVANCE_MODE=simulate\n"), 0o644))
	// t.Setenv restores the variable afterwards; godotenv only fills unset keys.
	t.Setenv("OCRDESK_TOAST_TTL", "")
	os.Unsetenv("OCRDESK_TOAST_TTL")
	t.Setenv("OCRDESK_ADVANCE_MODE", "backend")

	require.NoError(t, LoadEnvFile(path))
	cfg := Load()
	assert.Equal(t, 9*time.Second, cfg.ToastTTL)
	assert.Equal(t, "backend", cfg.AdvanceMode, "existing variables win")

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var text, js bytes.Buffer
	logger := SetupLoggerWithWriters(&text, &js, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("job created", "job_id", "job-1")

	assert.Contains(t, text.String(), "job_id=job-1")
	assert.NotContains(t, text.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &entry))
	assert.Equal(t, "job created", entry["msg"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ocrdesk.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
