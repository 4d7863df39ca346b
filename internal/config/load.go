package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and carry "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger = orDefault(logger)
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("loaded config file", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	logger = orDefault(logger)

	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	logger = orDefault(logger)

	cfgPath := firstNonEmpty(cli.ConfigPath, env.ConfigPath, DefaultConfigPath())

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	if env.ServerURL != "" {
		cfg.Server.URL = env.ServerURL
	}

	if env.Credentials != "" {
		cfg.Server.Credentials = env.Credentials
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}

	if cli.ServerURL != "" {
		cfg.Server.URL = cli.ServerURL
	}

	// --quiet wins over --verbose when both are given.
	switch {
	case cli.Quiet:
		cfg.Logging.LogLevel = "error"
	case cli.Verbose:
		cfg.Logging.LogLevel = "debug"
	}

	if cfg.Transfers.TempDir == "" {
		cfg.Transfers.TempDir = DefaultTempDir()
	}

	resolved := &Resolved{
		Config:     *cfg,
		ConfigPath: cfgPath,
		StatePath:  firstNonEmpty(cli.StatePath, env.StatePath, DefaultStatePath()),
	}

	if err := Validate(&resolved.Config); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	if resolved.StatePath == "" {
		return nil, errors.New("config: cannot determine state file location; set --state or DABBU_STATE")
	}

	logger.Debug("resolved configuration",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("state_path", resolved.StatePath),
		slog.String("server_url", resolved.Server.URL),
		slog.String("log_level", resolved.Logging.LogLevel),
	)

	return resolved, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}

	return logger
}
