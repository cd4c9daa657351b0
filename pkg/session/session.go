// Package session defines the keyed store of accumulated conversation
// context. A session holds one context string plus references to
// uploaded attachments; appending context keeps the most recent tail
// when the configured ceiling is exceeded, so old material ages out of
// the prompt window naturally.
//
// Backend implementations live in the memory, redis, and postgres
// subpackages.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxContextChars is the context ceiling applied when a store is
// created without one.
const DefaultMaxContextChars = 50000

// ErrNotFound is returned when a session does not exist and the
// operation does not create one.
var ErrNotFound = errors.New("session not found")

// Attachment references an uploaded file associated with a session.
// The file content itself lives outside the store.
type Attachment struct {
	// Name is the user-visible filename.
	Name string `json:"name"`

	// Kind is "image" or "document".
	Kind string `json:"kind"`

	// Ref locates the stored content.
	Ref string `json:"ref"`
}

// Session is the stored state for one conversation.
type Session struct {
	ID          string       `json:"id"`
	Context     string       `json:"context"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Store is the session persistence contract. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the session, creating an empty one on first use.
	Get(ctx context.Context, id string) (*Session, error)

	// AppendContext adds text to the session's context, creating the
	// session if needed, and trims to the store's ceiling keeping the
	// tail. Returns the updated session.
	AppendContext(ctx context.Context, id, text string) (*Session, error)

	// Attach records attachment references on the session, creating it
	// if needed.
	Attach(ctx context.Context, id string, atts ...Attachment) error

	// Delete removes the session. Deleting an absent session returns
	// ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// TrimTail returns the last max runes of s. Trimming counts characters,
// not bytes, so a multi-byte rune is never split.
func TrimTail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[len(runes)-max:])
}
