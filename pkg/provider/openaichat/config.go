package openaichat

import (
	"time"

	"github.com/quillgate/quillgate/pkg/retry"
)

// Config holds settings for an OpenAI-compatible backend.
type Config struct {
	// Name is the provider identifier reported to the gateway
	// (e.g., "openai", "deepseek").
	Name string

	// BaseURL is the backend root, without the completions path.
	BaseURL string

	// CompletionsPath overrides the Chat Completions endpoint path.
	// Default: "/v1/chat/completions".
	CompletionsPath string

	// APIKey is the bearer credential. Empty means not configured.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// Timeout bounds non-streaming requests. Default: 120s.
	Timeout time.Duration

	// Retry overrides the default backoff policy. Nil uses
	// retry.DefaultPolicy.
	Retry *retry.Policy
}

func (c *Config) defaults() {
	if c.CompletionsPath == "" {
		c.CompletionsPath = "/v1/chat/completions"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Retry == nil {
		c.Retry = retry.DefaultPolicy()
	}
}
