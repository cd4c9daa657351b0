// Package jwt provides a JWT authenticator that validates HMAC-signed
// bearer tokens with configurable issuer and audience checks.
package jwt

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/quillgate/quillgate/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret is the HMAC signing secret. Required.
	Secret string

	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// ScopesClaim names the claim carrying authorization scopes,
	// either a space-separated string or a JSON array.
	// Default: "scope".
	ScopesClaim string
}

// Authenticator validates HMAC-signed JWT bearer tokens.
type Authenticator struct {
	config Config
	parser *jwtlib.Parser
}

// New creates a JWT authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt: secret must not be empty")
	}
	if cfg.ScopesClaim == "" {
		cfg.ScopesClaim = "scope"
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		parser: jwtlib.NewParser(opts...),
	}, nil
}

// Authenticate extracts a bearer token and validates it as a JWT.
// Non-JWT bearer tokens abstain so an API key authenticator elsewhere
// in the chain can claim them.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if strings.Count(token, ".") != 2 {
		return auth.Result{Decision: auth.Abstain}
	}

	claims := jwtlib.MapClaims{}
	if _, err := a.parser.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		return []byte(a.config.Secret), nil
	}); err != nil {
		return auth.Result{Decision: auth.Reject, Err: fmt.Errorf("invalid token: %w", err)}
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return auth.Result{Decision: auth.Reject, Err: fmt.Errorf("token has no subject")}
	}

	return auth.Result{
		Decision: auth.Accept,
		Identity: &auth.Identity{
			Subject: subject,
			Scopes:  extractScopes(claims, a.config.ScopesClaim),
		},
	}
}

// extractScopes reads the scopes claim, accepting both the OAuth
// space-separated string form and a JSON array.
func extractScopes(claims jwtlib.MapClaims, claim string) []string {
	switch v := claims[claim].(type) {
	case string:
		if v == "" {
			return nil
		}
		return strings.Fields(v)
	case []any:
		scopes := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	}
	return nil
}
