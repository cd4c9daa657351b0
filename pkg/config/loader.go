package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, QUILLGATE_CONFIG env, ./config.yaml, /etc/quillgate/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. QUILLGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/quillgate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("QUILLGATE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/quillgate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps QUILLGATE_* environment variables to config
// fields. Credentials are the common case: a container deployment sets
// only the key variables and leaves the rest to the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUILLGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUILLGATE_DEFAULT_PROVIDER"); v != "" {
		cfg.Gateway.DefaultProvider = v
	}

	if v := os.Getenv("QUILLGATE_OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("QUILLGATE_ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("QUILLGATE_ZHIPU_API_KEY"); v != "" {
		cfg.Providers.Zhipu.APIKey = v
	}
	if v := os.Getenv("QUILLGATE_OLLAMA_URL"); v != "" {
		cfg.Providers.Ollama.BaseURL = v
	}

	if v := os.Getenv("QUILLGATE_SESSION_STORE"); v != "" {
		cfg.Session.Type = v
	}
	if v := os.Getenv("QUILLGATE_REDIS_ADDR"); v != "" {
		cfg.Session.Redis.Addr = v
	}
	if v := os.Getenv("QUILLGATE_POSTGRES_DSN"); v != "" {
		cfg.Session.Postgres.DSN = v
	}

	if v := os.Getenv("QUILLGATE_RAG_URL"); v != "" {
		cfg.RAG.BaseURL = v
	}

	if v := os.Getenv("QUILLGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
}

// resolveFileReferences reads _file fields and populates the
// corresponding value fields. The value field wins when both are set.
func resolveFileReferences(cfg *Config) error {
	cloud := []struct {
		name string
		cfg  *CloudProviderConfig
	}{
		{"openai", &cfg.Providers.OpenAI},
		{"anthropic", &cfg.Providers.Anthropic},
		{"zhipu", &cfg.Providers.Zhipu},
	}
	for _, p := range cloud {
		if p.cfg.APIKeyFile != "" && p.cfg.APIKey == "" {
			val, err := readSecretFile(p.cfg.APIKeyFile)
			if err != nil {
				return fmt.Errorf("providers.%s.api_key_file: %w", p.name, err)
			}
			p.cfg.APIKey = val
		}
	}

	if cfg.Session.Redis.PasswordFile != "" && cfg.Session.Redis.Password == "" {
		val, err := readSecretFile(cfg.Session.Redis.PasswordFile)
		if err != nil {
			return fmt.Errorf("session.redis.password_file: %w", err)
		}
		cfg.Session.Redis.Password = val
	}

	if cfg.Session.Postgres.DSNFile != "" && cfg.Session.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Session.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("session.postgres.dsn_file: %w", err)
		}
		cfg.Session.Postgres.DSN = val
	}

	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
