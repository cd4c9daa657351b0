// Package zhipu implements provider.Provider for the Zhipu GLM API. The
// wire protocol is OpenAI-compatible Chat Completions, so the package is
// a thin shell around openaichat.Client; the difference is the
// credential, a short-lived HS256 JWT minted per request from an
// "id.secret" API key.
package zhipu

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quillgate/quillgate/pkg/provider/openaichat"
	"github.com/quillgate/quillgate/pkg/retry"
)

const (
	defaultBaseURL  = "https://open.bigmodel.cn"
	completionsPath = "/api/paas/v4/chat/completions"
	defaultModel    = "glm-4-flash"

	// tokenTTL is the minted token lifetime. Zhipu expects millisecond
	// epoch claims.
	tokenTTL = 10 * time.Minute
)

// Config holds settings for the Zhipu backend.
type Config struct {
	// BaseURL is the API root. Default: "https://open.bigmodel.cn".
	BaseURL string

	// APIKey is the "id.secret" credential pair. Empty means not
	// configured.
	APIKey string

	// Model is the model identifier. Default: "glm-4-flash".
	Model string

	// Timeout bounds non-streaming requests.
	Timeout time.Duration

	// Retry overrides the default backoff policy.
	Retry *retry.Policy
}

// Client is the Zhipu provider. It embeds the Chat Completions client
// and supplies it a per-request token source.
type Client struct {
	*openaichat.Client
}

// New creates a Client for the Zhipu backend. An API key in any shape is
// accepted here; a malformed key (not "id.secret") surfaces as an
// authentication error on first use rather than at construction, so
// registry setup never fails on a bad credential.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	c := &Client{
		Client: openaichat.New(openaichat.Config{
			Name:            "zhipu",
			BaseURL:         cfg.BaseURL,
			CompletionsPath: completionsPath,
			Model:           cfg.Model,
			Timeout:         cfg.Timeout,
			Retry:           cfg.Retry,
		}),
	}

	if cfg.APIKey != "" {
		id, secret, ok := strings.Cut(cfg.APIKey, ".")
		c.Client.TokenSource = func() (string, error) {
			if !ok || id == "" || secret == "" {
				return "", fmt.Errorf(`API key is not an "id.secret" pair`)
			}
			return mintToken(id, secret, time.Now())
		}
	}

	return c
}

// mintToken builds the signed credential Zhipu expects: HS256, a
// "sign_type: SIGN" header, and millisecond epoch exp/timestamp claims.
func mintToken(id, secret string, now time.Time) (string, error) {
	nowMillis := now.UnixMilli()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"api_key":   id,
		"exp":       nowMillis + tokenTTL.Milliseconds(),
		"timestamp": nowMillis,
	})
	token.Header["sign_type"] = "SIGN"

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
