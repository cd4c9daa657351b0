package api

// GenerationRequest is a single generation call. It is a value type
// constructed per call and not retained by the gateway.
//
// System and Prompt are distinct fields end to end: the boundary layer
// never concatenates them into one string for the gateway to re-split.
type GenerationRequest struct {
	// Prompt is the user-facing input text. Required.
	Prompt string `json:"prompt"`

	// System optionally overrides the provider's configured default
	// system instruction.
	System string `json:"system,omitempty"`

	// Provider names the target provider. Empty routes to the
	// gateway's configured default.
	Provider string `json:"provider,omitempty"`

	// MaxTokens caps the output length. Zero uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness. Nil uses the provider
	// default.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Validate checks request fields that can be rejected before any
// network I/O.
func (r *GenerationRequest) Validate() *Error {
	if r.Prompt == "" {
		return NewInvalidRequestError("prompt", "prompt must not be empty")
	}
	if r.MaxTokens < 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must not be negative")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return NewInvalidRequestError("temperature", "temperature must be between 0 and 2")
	}
	return nil
}

// GenerationResult is the complete text of a synchronous generation call.
// No partial state outlives the call that produced it.
type GenerationResult struct {
	// Text is the generated output.
	Text string `json:"text"`

	// Provider is the name of the provider that served the call.
	Provider string `json:"provider"`

	// Model is the model identifier the provider used.
	Model string `json:"model"`
}
