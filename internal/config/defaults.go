package config

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultServerURL       = "http://localhost:8080"
	defaultCallbackTimeout = "5m"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultNetworkTimeout  = "0"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: defaultServerURL,
		},
		Auth: AuthConfig{
			OpenBrowser:     true,
			CallbackTimeout: defaultCallbackTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			Timeout: defaultNetworkTimeout,
		},
	}
}
