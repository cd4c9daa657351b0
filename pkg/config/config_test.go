package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Gateway.DefaultProvider != "ollama" {
		t.Errorf("DefaultProvider = %q", cfg.Gateway.DefaultProvider)
	}
	if cfg.Gateway.Retry.MaxAttempts != 3 || cfg.Gateway.Retry.BaseDelay != 2*time.Second {
		t.Errorf("Retry = %+v", cfg.Gateway.Retry)
	}
	if cfg.Session.Type != "memory" || cfg.Session.MaxContextChars != 50000 {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Observability.Metrics)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
server:
  port: 9090
gateway:
  default_provider: anthropic
  max_in_flight: 8
providers:
  anthropic:
    api_key: sk-test
    model: claude-sonnet-4
session:
  type: memory
  max_sessions: 50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Gateway.DefaultProvider != "anthropic" || cfg.Gateway.MaxInFlight != 8 {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-test" {
		t.Errorf("Anthropic = %+v", cfg.Providers.Anthropic)
	}
	// Unset fields keep their defaults.
	if cfg.Gateway.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want default", cfg.Gateway.Retry.MaxAttempts)
	}
	if cfg.Session.MaxSessions != 50 {
		t.Errorf("MaxSessions = %d", cfg.Session.MaxSessions)
	}
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
server:
  port: 9090
providers:
  openai:
    api_key: from-yaml
`)
	t.Setenv("QUILLGATE_PORT", "7070")
	t.Setenv("QUILLGATE_OPENAI_API_KEY", "from-env")
	t.Setenv("QUILLGATE_DEFAULT_PROVIDER", "openai")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, env must win", cfg.Server.Port)
	}
	if cfg.Providers.OpenAI.APIKey != "from-env" {
		t.Errorf("APIKey = %q, env must win", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Gateway.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q", cfg.Gateway.DefaultProvider)
	}
}

func TestFileReferenceResolution(t *testing.T) {
	dir := t.TempDir()
	secretPath := writeFile(t, dir, "api_key", "sk-secret\n")
	path := writeFile(t, dir, "config.yaml", `
providers:
  zhipu:
    api_key_file: `+secretPath+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Zhipu.APIKey != "sk-secret" {
		t.Errorf("APIKey = %q, want trimmed file content", cfg.Providers.Zhipu.APIKey)
	}
}

func TestFileReferenceMissingFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
providers:
  openai:
    api_key_file: /nonexistent/api_key
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail on unreadable secret file")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad port",
			yaml: "server:\n  port: -1\n",
			want: "server.port",
		},
		{
			name: "unknown default provider",
			yaml: "gateway:\n  default_provider: mystery\n",
			want: "gateway.default_provider",
		},
		{
			name: "unknown session type",
			yaml: "session:\n  type: cassette\n",
			want: "session.type",
		},
		{
			name: "redis without addr",
			yaml: "session:\n  type: redis\n",
			want: "session.redis.addr",
		},
		{
			name: "postgres without dsn",
			yaml: "session:\n  type: postgres\n",
			want: "session.postgres.dsn",
		},
		{
			name: "auth enabled without credentials",
			yaml: "auth:\n  enabled: true\n",
			want: "auth.enabled",
		},
		{
			name: "api key without subject",
			yaml: "auth:\n  enabled: true\n  api_keys:\n    - key: qg-test\n",
			want: "auth.api_keys[0].subject",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load should fail validation")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestConfigFileDiscoveryEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "custom.yaml", "server:\n  port: 3000\n")
	t.Setenv("QUILLGATE_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d, want the QUILLGATE_CONFIG file applied", cfg.Server.Port)
	}
}
