package provider

// Capabilities declares what features a backend supports. Used by the
// gateway for early request validation.
type Capabilities struct {
	// Streaming indicates whether the provider supports native streaming
	// responses. Providers without it are served through the one-shot
	// stream shim.
	Streaming bool
}

// Status is the result of a liveness/credential probe.
type Status string

const (
	// StatusOK means the backend answered a minimal request.
	StatusOK Status = "ok"

	// StatusRateLimited means the probe hit HTTP 429.
	StatusRateLimited Status = "rate_limited"

	// StatusInvalidCredential means the backend rejected the credential.
	StatusInvalidCredential Status = "invalid_credential"

	// StatusNotConfigured means the credential is absent; no network
	// call is made in this case.
	StatusNotConfigured Status = "not_configured"

	// StatusError covers every other probe failure.
	StatusError Status = "error"
)

// Request is the backend-facing generation request, stripped of routing
// concerns. The adapter translates it to its provider-specific body.
type Request struct {
	// Prompt is the user input text.
	Prompt string

	// System is the system instruction. The gateway resolves the
	// caller-supplied override against the provider's configured
	// default before the request reaches the adapter.
	System string

	// MaxTokens caps the output length. Zero lets the adapter apply
	// its default.
	MaxTokens int

	// Temperature controls sampling randomness. Nil lets the adapter
	// apply its default.
	Temperature *float64

	// Stream selects the streaming wire protocol. Adapters force this
	// to match the entry point used.
	Stream bool
}

// Result is a backend's complete non-streaming response.
type Result struct {
	Text  string
	Model string
}

// EventType classifies a streaming event.
type EventType int

const (
	// EventTextDelta carries an incremental text fragment.
	EventTextDelta EventType = iota

	// EventDone signals normal stream completion.
	EventDone

	// EventError signals a mid-stream failure. Fragments already
	// emitted stand; the error is terminal, never spliced into text.
	EventError
)

// Event is a single streaming event. Events are emitted strictly in wire
// arrival order; Seq exists for diagnostics only and is never used to
// re-sort.
type Event struct {
	Type EventType

	// Delta is the text fragment for EventTextDelta.
	Delta string

	// Seq is the 1-based position of this event in the stream.
	Seq int

	// SkippedFrames reports how many malformed protocol lines the
	// decoder skipped, populated on terminal events.
	SkippedFrames int

	// Err is populated for EventError.
	Err error
}
