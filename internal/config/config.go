// Package config loads ocrdesk settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSurreal  = "surreal"
	StorePostgres = "postgres"
)

// Config holds all configuration values.
type Config struct {
	// OCR backend
	APIBaseURL    string
	ClientTimeout time.Duration

	// Desk server
	ServerURL  string
	ServerPort int

	// Job tracking
	JobCapacity      int
	PollInterval     time.Duration
	PollMaxAttempts  int
	SimulateInterval time.Duration
	AdvanceMode      string
	ToastTTL         time.Duration

	// Persistence
	Store              string
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string
	PostgresDSN        string

	PrefsFile string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// LoadEnvFile seeds the environment from a dotenv file. Variables that are
// already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		APIBaseURL:    strings.TrimRight(getEnv("OCRDESK_API_BASE_URL", "http://localhost:8000"), "/"),
		ClientTimeout: getDuration("OCRDESK_CLIENT_TIMEOUT", 2*time.Minute),

		ServerURL:  strings.TrimRight(getEnv("OCRDESK_SERVER_URL", "http://localhost:8585"), "/"),
		ServerPort: getInt("OCRDESK_SERVER_PORT", 8585),

		JobCapacity:      getInt("OCRDESK_JOB_CAPACITY", 20),
		PollInterval:     getDuration("OCRDESK_POLL_INTERVAL", time.Second),
		PollMaxAttempts:  getInt("OCRDESK_POLL_MAX_ATTEMPTS", 120),
		SimulateInterval: getDuration("OCRDESK_SIMULATE_INTERVAL", 550*time.Millisecond),
		AdvanceMode:      strings.ToLower(getEnv("OCRDESK_ADVANCE_MODE", "auto")),
		ToastTTL:         getDuration("OCRDESK_TOAST_TTL", 4*time.Second),

		Store:              strings.ToLower(getEnv("OCRDESK_STORE", StoreMemory)),
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8001/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "ocrdesk"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "jobs"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),
		PostgresDSN:        getEnv("OCRDESK_POSTGRES_DSN", "postgres://localhost:5432/ocrdesk?sslmode=disable"),

		PrefsFile: getEnv("OCRDESK_PREFS_FILE", defaultPrefsFile()),

		LogFile:  getEnv("OCRDESK_LOG_FILE", filepath.Join(os.TempDir(), "ocrdesk.log")),
		LogLevel: parseLogLevel(getEnv("OCRDESK_LOG_LEVEL", "INFO")),
	}
}

// ListenAddr is the desk server's listen address.
func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.ServerPort)
}

func defaultPrefsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".ocrdesk-prefs.yaml"
	}
	return filepath.Join(dir, "ocrdesk", "prefs.yaml")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
