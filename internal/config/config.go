// Package config loads the dabbu settings file and resolves the effective
// configuration from defaults, the TOML file, environment variables, and CLI
// flags, in that order of increasing precedence.
package config

import "time"

// Config is the decoded settings file. Every section has defaults, so an
// absent file behaves like an empty one.
type Config struct {
	Server    ServerConfig    `toml:"server" json:"server"`
	Auth      AuthConfig      `toml:"auth" json:"auth"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
	Network   NetworkConfig   `toml:"network" json:"network"`
	Transfers TransfersConfig `toml:"transfers" json:"transfers"`
}

// ServerConfig locates the Files API server. Credentials is the session
// identifier sent in the X-Credentials header; when empty a generated id is
// persisted in the drive state instead.
type ServerConfig struct {
	URL         string `toml:"url" json:"url"`
	Credentials string `toml:"credentials" json:"credentials"`
}

// AuthConfig controls the interactive OAuth2 authorization flow.
type AuthConfig struct {
	OpenBrowser     bool   `toml:"open_browser" json:"open_browser"`
	CallbackTimeout string `toml:"callback_timeout" json:"callback_timeout"`
}

// CallbackTimeoutDuration returns the parsed callback timeout. Validation
// guarantees the string parses, so the error is ignored here.
func (a AuthConfig) CallbackTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(a.CallbackTimeout)

	return d
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// NetworkConfig controls HTTP client behavior. A zero timeout disables the
// overall request deadline.
type NetworkConfig struct {
	Timeout   string `toml:"timeout" json:"timeout"`
	UserAgent string `toml:"user_agent" json:"user_agent"`
}

// TimeoutDuration returns the parsed request timeout.
func (n NetworkConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.Timeout)

	return d
}

// TransfersConfig controls where downloads are staged before upload.
type TransfersConfig struct {
	TempDir string `toml:"temp_dir" json:"temp_dir"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	StatePath  string // --state
	ServerURL  string // --server
	Verbose    bool   // --verbose
	Quiet      bool   // --quiet
}

// Resolved is the effective configuration after all override layers have
// been applied, plus the file locations the CLI needs.
type Resolved struct {
	Config

	ConfigPath string `json:"config_path"`
	StatePath  string `json:"state_path"`
}
