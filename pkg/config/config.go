// Package config provides unified configuration for the quillgate server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (QUILLGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the quillgate server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Session       SessionConfig       `yaml:"session"`
	RAG           RAGConfig           `yaml:"rag"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 0 (streams write indefinitely)
}

// GatewayConfig holds routing and resilience settings.
type GatewayConfig struct {
	// DefaultProvider serves requests that name no provider.
	// Default: "ollama".
	DefaultProvider string `yaml:"default_provider"`

	// MaxInFlight caps concurrent calls per provider. 0 = unbounded.
	MaxInFlight int64 `yaml:"max_in_flight"`

	// StrictStreaming rejects streaming calls to non-streaming providers
	// instead of serving them through the one-shot shim.
	StrictStreaming bool `yaml:"strict_streaming"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig holds the backoff schedule for non-streaming calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // default: 3
	BaseDelay   time.Duration `yaml:"base_delay"`   // default: 2s
	MaxDelay    time.Duration `yaml:"max_delay"`    // default: 30s
}

// ProvidersConfig holds per-backend settings. A cloud provider without a
// credential is still registered; it reports not_configured and fails
// generation with an authentication error.
type ProvidersConfig struct {
	OpenAI    CloudProviderConfig `yaml:"openai"`
	Anthropic CloudProviderConfig `yaml:"anthropic"`
	Zhipu     CloudProviderConfig `yaml:"zhipu"`
	Ollama    OllamaConfig        `yaml:"ollama"`
}

// CloudProviderConfig describes one cloud chat backend.
type CloudProviderConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	APIKeyFile    string        `yaml:"api_key_file"` // _file variant for api_key
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	DefaultSystem string        `yaml:"default_system"`
}

// OllamaConfig describes the local inference daemon. No credential.
type OllamaConfig struct {
	BaseURL       string        `yaml:"base_url"` // default: "http://localhost:11434"
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	DefaultSystem string        `yaml:"default_system"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	Type            string         `yaml:"type"`              // "memory", "redis", or "postgres", default: "memory"
	MaxSessions     int            `yaml:"max_sessions"`      // memory store LRU cap, default: 10000
	MaxContextChars int            `yaml:"max_context_chars"` // default: 50000
	Redis           RedisConfig    `yaml:"redis"`
	Postgres        PostgresConfig `yaml:"postgres"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	PasswordFile string        `yaml:"password_file"` // _file variant for password
	DB           int           `yaml:"db"`
	IdleTTL      time.Duration `yaml:"idle_ttl"` // default: 24h
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// RAGConfig holds the external vector-search service settings. An empty
// base URL disables retrieval.
type RAGConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Results int           `yaml:"results"` // documents per query, default: 5
}

// AuthConfig holds inbound API authentication settings. Disabled means
// every request is served anonymously. These credentials guard the
// quillgate API itself, not the upstream providers.
type AuthConfig struct {
	Enabled bool           `yaml:"enabled"`
	APIKeys []APIKeyConfig `yaml:"api_keys"`
	JWT     JWTConfig      `yaml:"jwt"`
}

// APIKeyConfig is one static API key and the identity it grants.
type APIKeyConfig struct {
	Key     string   `yaml:"key"`
	KeyFile string   `yaml:"key_file"` // _file variant for key
	Subject string   `yaml:"subject"`
	Scopes  []string `yaml:"scopes"`
}

// JWTConfig holds HMAC JWT verification settings. An empty secret
// disables the JWT authenticator.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`

	// Debug is a comma-separated list of debug categories
	// (see pkg/debug). Empty disables category logging.
	Debug string `yaml:"debug"`

	// LogLevel sets the slog level: ERROR, WARN, INFO, DEBUG, TRACE.
	// Default: "INFO".
	LogLevel string `yaml:"log_level"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			DefaultProvider: "ollama",
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   2 * time.Second,
				MaxDelay:    30 * time.Second,
			},
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{
				BaseURL: "http://localhost:11434",
			},
		},
		Session: SessionConfig{
			Type:            "memory",
			MaxSessions:     10000,
			MaxContextChars: 50000,
			Redis: RedisConfig{
				IdleTTL: 24 * time.Hour,
			},
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		RAG: RAGConfig{
			Results: 5,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			LogLevel: "INFO",
		},
	}
}
