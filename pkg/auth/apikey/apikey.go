// Package apikey provides an API key authenticator that validates
// bearer tokens against a static key store using SHA-256 hashing and
// constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/quillgate/quillgate/pkg/auth"
)

// Key pairs one raw API key with the identity it grants.
type Key struct {
	Key     string
	Subject string
	Scopes  []string
}

type entry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against a static key store.
// Keys are hashed at construction; plaintext keys are not retained.
type Authenticator struct {
	keys []entry
}

// New creates an API key authenticator from the configured keys.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		a.keys = append(a.keys, entry{
			hash:     sha256.Sum256([]byte(k.Key)),
			identity: auth.Identity{Subject: k.Subject, Scopes: k.Scopes},
		})
	}
	return a
}

// Authenticate extracts a bearer token and checks it against the key
// store. A missing Authorization header or a non-Bearer scheme abstains
// so a JWT authenticator later in the chain can claim the request.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := bearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.Result{Decision: auth.Reject, Err: auth.ErrUnauthenticated}
	}

	hash := sha256.Sum256([]byte(token))
	for _, e := range a.keys {
		if subtle.ConstantTimeCompare(hash[:], e.hash[:]) == 1 {
			id := e.identity
			return auth.Result{Decision: auth.Accept, Identity: &id}
		}
	}

	// A bearer token that is not a known key may still be a JWT.
	if strings.Count(token, ".") == 2 {
		return auth.Result{Decision: auth.Abstain}
	}
	return auth.Result{Decision: auth.Reject, Err: auth.ErrUnauthenticated}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	return token, true
}
