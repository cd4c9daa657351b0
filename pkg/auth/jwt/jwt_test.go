package jwt

import (
	"context"
	"net/http"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/quillgate/quillgate/pkg/auth"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func newTestAuthenticator(t *testing.T, cfg Config) *Authenticator {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("creating authenticator: %v", err)
	}
	return a
}

func bearerRequest(token string) *http.Request {
	r, _ := http.NewRequest("POST", "/v1/generate", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthenticateValidToken(t *testing.T) {
	a := newTestAuthenticator(t, Config{})
	token := signToken(t, jwtlib.MapClaims{
		"sub":   "alice",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "generate sessions",
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Accept {
		t.Fatalf("Decision = %d, want Accept (err: %v)", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "alice")
	}
	if len(result.Identity.Scopes) != 2 || result.Identity.Scopes[0] != "generate" {
		t.Errorf("Scopes = %v, want [generate sessions]", result.Identity.Scopes)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	a := newTestAuthenticator(t, Config{})
	token := signToken(t, jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Reject {
		t.Errorf("Decision = %d, want Reject for expired token", result.Decision)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	a := newTestAuthenticator(t, Config{Secret: "a-different-secret"})
	token := signToken(t, jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Reject {
		t.Errorf("Decision = %d, want Reject for bad signature", result.Decision)
	}
}

func TestAuthenticateIssuerMismatch(t *testing.T) {
	a := newTestAuthenticator(t, Config{Issuer: "https://auth.example.com"})
	token := signToken(t, jwtlib.MapClaims{
		"sub": "alice",
		"iss": "https://rogue.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Reject {
		t.Errorf("Decision = %d, want Reject for issuer mismatch", result.Decision)
	}
}

func TestAuthenticateAudienceCheck(t *testing.T) {
	a := newTestAuthenticator(t, Config{Audience: "quillgate"})
	token := signToken(t, jwtlib.MapClaims{
		"sub": "alice",
		"aud": "quillgate",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Accept {
		t.Errorf("Decision = %d, want Accept (err: %v)", result.Decision, result.Err)
	}
}

func TestAuthenticateMissingSubject(t *testing.T) {
	a := newTestAuthenticator(t, Config{})
	token := signToken(t, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Reject {
		t.Errorf("Decision = %d, want Reject for missing sub", result.Decision)
	}
}

func TestAuthenticateMissingExpiry(t *testing.T) {
	a := newTestAuthenticator(t, Config{})
	token := signToken(t, jwtlib.MapClaims{"sub": "alice"})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Reject {
		t.Errorf("Decision = %d, want Reject for missing exp", result.Decision)
	}
}

func TestAuthenticateNonJWTAbstains(t *testing.T) {
	a := newTestAuthenticator(t, Config{})

	result := a.Authenticate(context.Background(), bearerRequest("qg-plain-api-key"))

	if result.Decision != auth.Abstain {
		t.Errorf("Decision = %d, want Abstain for non-JWT token", result.Decision)
	}
}

func TestAuthenticateNoHeaderAbstains(t *testing.T) {
	a := newTestAuthenticator(t, Config{})

	result := a.Authenticate(context.Background(), bearerRequest(""))

	if result.Decision != auth.Abstain {
		t.Errorf("Decision = %d, want Abstain without header", result.Decision)
	}
}

func TestArrayScopesClaim(t *testing.T) {
	a := newTestAuthenticator(t, Config{ScopesClaim: "permissions"})
	token := signToken(t, jwtlib.MapClaims{
		"sub":         "alice",
		"exp":         time.Now().Add(time.Hour).Unix(),
		"permissions": []string{"generate", "sessions"},
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Accept {
		t.Fatalf("Decision = %d, want Accept (err: %v)", result.Decision, result.Err)
	}
	if len(result.Identity.Scopes) != 2 {
		t.Errorf("Scopes = %v, want two entries", result.Identity.Scopes)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New with empty secret should fail")
	}
}
