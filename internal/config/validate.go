package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validation range constants.
const (
	minCallbackTimeout = 10 * time.Second
	maxCallbackTimeout = time.Hour
)

// Validate checks all configuration values and returns all errors found.
// Every section is checked so users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = appendSection(errs, "server", cfg.Server.Validate())
	errs = appendSection(errs, "auth", cfg.Auth.Validate())
	errs = appendSection(errs, "logging", cfg.Logging.Validate())
	errs = appendSection(errs, "network", cfg.Network.Validate())

	return errors.Join(errs...)
}

func appendSection(errs []error, section string, err error) []error {
	if err == nil {
		return errs
	}

	return append(errs, fmt.Errorf("%s: %w", section, err))
}

// Validate checks the server section.
func (s *ServerConfig) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.URL, validation.Required, validation.By(httpURL)),
	)
}

// Validate checks the auth section.
func (a *AuthConfig) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.CallbackTimeout, validation.Required,
			validation.By(durationBetween(minCallbackTimeout, maxCallbackTimeout))),
	)
}

// Validate checks the logging section.
func (l *LoggingConfig) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.LogFormat, validation.Required, validation.In("auto", "text", "json")),
	)
}

// Validate checks the network section.
func (n *NetworkConfig) Validate() error {
	return validation.ValidateStruct(n,
		validation.Field(&n.Timeout, validation.Required, validation.By(durationBetween(0, 0))),
	)
}

// httpURL accepts absolute http and https URLs with a host.
func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http or https URL")
	}

	return nil
}

// durationBetween returns a rule that parses a Go duration string and checks
// it against the bounds. A zero maximum means unbounded. Negative durations
// are always rejected.
func durationBetween(minimum, maximum time.Duration) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}

		if d < 0 {
			return fmt.Errorf("must not be negative, got %s", s)
		}

		if d < minimum {
			return fmt.Errorf("must be at least %s, got %s", minimum, s)
		}

		if maximum > 0 && d > maximum {
			return fmt.Errorf("must be at most %s, got %s", maximum, s)
		}

		return nil
	}
}
