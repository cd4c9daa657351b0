package config

import (
	"errors"
	"fmt"
)

// knownProviders are the names the server can register.
var knownProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"zhipu":     true,
	"ollama":    true,
}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if !knownProviders[c.Gateway.DefaultProvider] {
		errs = append(errs, fmt.Errorf("gateway.default_provider must be one of openai, anthropic, zhipu, ollama, got %q", c.Gateway.DefaultProvider))
	}
	if c.Gateway.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_in_flight must be >= 0, got %d", c.Gateway.MaxInFlight))
	}
	if c.Gateway.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("gateway.retry.max_attempts must be > 0, got %d", c.Gateway.Retry.MaxAttempts))
	}
	if c.Gateway.Retry.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("gateway.retry.base_delay must be > 0, got %s", c.Gateway.Retry.BaseDelay))
	}

	switch c.Session.Type {
	case "memory":
		// valid
	case "redis":
		if c.Session.Redis.Addr == "" {
			errs = append(errs, errors.New("session.redis.addr is required when session.type is \"redis\""))
		}
	case "postgres":
		if c.Session.Postgres.DSN == "" && c.Session.Postgres.DSNFile == "" {
			errs = append(errs, errors.New("session.postgres.dsn or session.postgres.dsn_file is required when session.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("session.type must be \"memory\", \"redis\", or \"postgres\", got %q", c.Session.Type))
	}

	if c.Auth.Enabled {
		if len(c.Auth.APIKeys) == 0 && c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, errors.New("auth.enabled requires at least one of auth.api_keys or auth.jwt.secret"))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	}

	if c.Session.MaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("session.max_context_chars must be > 0, got %d", c.Session.MaxContextChars))
	}

	return errors.Join(errs...)
}
