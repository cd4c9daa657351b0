package provider

import "context"

// Provider abstracts a text generation backend. Implementations must be
// safe for concurrent use by multiple goroutines; the gateway shares one
// instance (and its pooled connections) across all calls to that backend.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "ollama").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Generate performs a synchronous generation call and returns the
	// complete text. Failures are normalized to *api.Error.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// Stream performs a streaming generation call. The returned channel
	// receives Event values in wire arrival order and is closed by the
	// provider when the stream completes or fails. Cancelling ctx closes
	// the underlying connection and stops the reader.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// CheckStatus probes the backend with a single minimal request on a
	// short timeout. It never consumes a caller's retry budget and never
	// touches the network when the credential is absent.
	CheckStatus(ctx context.Context) Status

	// Close releases provider resources (idle HTTP connections).
	Close() error
}
