package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is the three-outcome vote of one authenticator.
type Decision int

const (
	// Accept means credentials are valid. The chain stops and the
	// identity is used.
	Accept Decision = iota

	// Reject means credentials are present but invalid. The chain
	// stops and the request is refused.
	Reject

	// Abstain means this authenticator cannot handle the credential
	// type. The chain continues to the next authenticator.
	Abstain
)

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // populated only when Decision == Accept
	Err      error     // populated only when Decision == Reject
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject is the unique caller identifier. Never empty for an
	// accepted identity.
	Subject string

	// Scopes lists the granted authorization scopes.
	Scopes []string
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// ErrUnauthenticated is the generic credential failure. Callers never
// learn which part of the credential was wrong.
var ErrUnauthenticated = errors.New("authentication required")

// Chain evaluates authenticators in order, stopping on the first
// non-abstaining vote.
type Chain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator

	// AllowAnonymous accepts requests when every authenticator
	// abstains, assigning an anonymous identity. False rejects them.
	AllowAnonymous bool
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		result := a.Authenticate(ctx, r)
		if result.Decision != Abstain {
			return result
		}
	}

	if c.AllowAnonymous {
		return Result{
			Decision: Accept,
			Identity: &Identity{Subject: "anonymous"},
		}
	}
	return Result{Decision: Reject, Err: ErrUnauthenticated}
}
