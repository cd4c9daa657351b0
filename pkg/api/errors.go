package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a gateway error. The transport boundary maps kinds
// to HTTP status codes; the retry policy consults kinds to decide whether
// a failure is transient.
type ErrorKind string

const (
	// ErrorKindAuthentication indicates a missing or rejected credential.
	// Never retried.
	ErrorKindAuthentication ErrorKind = "authentication_error"

	// ErrorKindRateLimited indicates the backend returned HTTP 429.
	// Retried with backoff; surfaced when the budget is exhausted.
	ErrorKindRateLimited ErrorKind = "rate_limited"

	// ErrorKindUpstream indicates a backend server error (HTTP 5xx)
	// that survived the retry budget.
	ErrorKindUpstream ErrorKind = "upstream_error"

	// ErrorKindNetwork indicates a transport-level failure (connection
	// refused, reset, timeout) that survived the retry budget.
	ErrorKindNetwork ErrorKind = "network_error"

	// ErrorKindProtocol indicates the backend response could not be
	// parsed into the expected shape. Never retried: a shape mismatch
	// does not heal on its own.
	ErrorKindProtocol ErrorKind = "protocol_error"

	// ErrorKindUnknownProvider indicates the request named a provider
	// that is not registered.
	ErrorKindUnknownProvider ErrorKind = "unknown_provider"

	// ErrorKindStreamingUnsupported indicates a streaming call was routed
	// to a provider whose capability set lacks streaming.
	ErrorKindStreamingUnsupported ErrorKind = "streaming_unsupported"

	// ErrorKindInvalidRequest indicates a caller usage error detected
	// before any network I/O.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
)

// Error is a structured gateway error with a kind and message. Provider
// adapters construct these at the point where a backend failure is first
// observed, preserving the most specific information available.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// Param names the offending request field for invalid_request errors.
	Param string `json:"param,omitempty"`

	// RetryAfter holds the backend-supplied wait hint for rate_limited
	// errors, zero when the backend gave none.
	RetryAfter time.Duration `json:"-"`

	// HTTPStatus records the backend status code that produced this
	// error, zero when none applies. The retry policy uses it to keep
	// fatal 4xx upstream failures out of the retry budget.
	HTTPStatus int `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Kind, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf returns the ErrorKind of err if it is (or wraps) an *Error,
// and ErrorKindUpstream otherwise. Unclassified errors are treated as
// upstream failures so the distinction that matters most to callers
// (retryable vs caller error) is never lost.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindUpstream
}

// NewAuthenticationError creates an Error for a missing or invalid credential.
func NewAuthenticationError(message string) *Error {
	return &Error{Kind: ErrorKindAuthentication, Message: message}
}

// NewRateLimitedError creates an Error for an HTTP 429 response.
// retryAfter may be zero when the backend supplied no hint.
func NewRateLimitedError(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: ErrorKindRateLimited, Message: message, RetryAfter: retryAfter}
}

// NewUpstreamError creates an Error for a backend server failure.
func NewUpstreamError(message string) *Error {
	return &Error{Kind: ErrorKindUpstream, Message: message}
}

// NewNetworkError creates an Error for a transport-level failure.
func NewNetworkError(message string) *Error {
	return &Error{Kind: ErrorKindNetwork, Message: message}
}

// NewProtocolError creates an Error for an unparseable backend response.
func NewProtocolError(message string) *Error {
	return &Error{Kind: ErrorKindProtocol, Message: message}
}

// NewUnknownProviderError creates an Error for an unregistered provider name.
func NewUnknownProviderError(name string) *Error {
	return &Error{
		Kind:    ErrorKindUnknownProvider,
		Message: fmt.Sprintf("provider %q is not configured", name),
	}
}

// NewStreamingUnsupportedError creates an Error for a streaming call to a
// provider without streaming capability.
func NewStreamingUnsupportedError(name string) *Error {
	return &Error{
		Kind:    ErrorKindStreamingUnsupported,
		Message: fmt.Sprintf("provider %q does not support streaming", name),
	}
}

// NewInvalidRequestError creates an Error for a caller usage error.
func NewInvalidRequestError(param, message string) *Error {
	return &Error{Kind: ErrorKindInvalidRequest, Param: param, Message: message}
}
