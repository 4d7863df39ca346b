package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig      = "DABBU_CONFIG"
	EnvState       = "DABBU_STATE"
	EnvServerURL   = "DABBU_SERVER_URL"
	EnvCredentials = "DABBU_CREDENTIALS"
	EnvLogLevel    = "DABBU_LOG_LEVEL"
)

// dotEnvFile is read from the working directory before the environment is
// consulted. Variables already present in the environment are not replaced.
const dotEnvFile = ".env"

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // DABBU_CONFIG
	StatePath   string // DABBU_STATE
	ServerURL   string // DABBU_SERVER_URL
	Credentials string // DABBU_CREDENTIALS
	LogLevel    string // DABBU_LOG_LEVEL
}

// ReadEnvOverrides loads .env (if present) and reads the DABBU_* variables.
// A malformed .env is logged and skipped rather than treated as fatal.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	if logger == nil {
		logger = slog.Default()
	}

	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("ignoring unreadable .env file", slog.String("error", err.Error()))
	}

	overrides := EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		StatePath:   os.Getenv(EnvState),
		ServerURL:   os.Getenv(EnvServerURL),
		Credentials: os.Getenv(EnvCredentials),
		LogLevel:    os.Getenv(EnvLogLevel),
	}

	logger.Debug("read environment overrides",
		slog.String("config_path", overrides.ConfigPath),
		slog.String("state_path", overrides.StatePath),
		slog.String("server_url", overrides.ServerURL),
		slog.Bool("credentials_set", overrides.Credentials != ""),
		slog.String("log_level", overrides.LogLevel),
	)

	return overrides
}
