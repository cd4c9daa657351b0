// Package api defines the caller-facing types of the quillgate generation
// gateway: the generation request/result value types and the error taxonomy
// shared by all provider adapters.
//
// Every provider-internal failure is normalized to an *Error before it
// crosses the gateway boundary, so callers never need provider-specific
// knowledge to distinguish a rate limit from a fatal protocol mismatch.
package api
