package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"https url", func(c *Config) { c.Server.URL = "https://files.example.com/api" }, ""},
		{"empty url", func(c *Config) { c.Server.URL = "" }, "url"},
		{"relative url", func(c *Config) { c.Server.URL = "/files" }, "absolute http or https URL"},
		{"ftp url", func(c *Config) { c.Server.URL = "ftp://files.example.com" }, "absolute http or https URL"},
		{"bad log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "log_level"},
		{"bad log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "log_format"},
		{"callback timeout too short", func(c *Config) { c.Auth.CallbackTimeout = "1s" }, "at least"},
		{"callback timeout too long", func(c *Config) { c.Auth.CallbackTimeout = "2h" }, "at most"},
		{"callback timeout garbage", func(c *Config) { c.Auth.CallbackTimeout = "soon" }, "invalid duration"},
		{"network timeout negative", func(c *Config) { c.Network.Timeout = "-1s" }, "must not be negative"},
		{"network timeout set", func(c *Config) { c.Network.Timeout = "45s" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEverySection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.URL = "nope"
	cfg.Logging.LogLevel = "loud"
	cfg.Network.Timeout = "forever"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server:")
	assert.Contains(t, err.Error(), "logging:")
	assert.Contains(t, err.Error(), "network:")
	assert.NotContains(t, err.Error(), "auth:")
}
