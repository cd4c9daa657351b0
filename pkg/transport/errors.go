package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/quillgate/quillgate/pkg/api"
)

// HTTPStatusFromError maps an error kind to its HTTP status code.
// Backend-side failures (authentication against the upstream, upstream
// server errors, network failures, protocol mismatches) surface as 502:
// the gateway itself is healthy, the backend behind it is not.
func HTTPStatusFromError(err error) int {
	switch api.KindOf(err) {
	case api.ErrorKindInvalidRequest, api.ErrorKindStreamingUnsupported:
		return http.StatusBadRequest
	case api.ErrorKindUnknownProvider:
		return http.StatusNotFound
	case api.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case api.ErrorKindAuthentication, api.ErrorKindUpstream,
		api.ErrorKindNetwork, api.ErrorKindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// errorEnvelope is the JSON wrapper for error responses.
type errorEnvelope struct {
	Error *api.Error `json:"error"`
}

// WriteError writes a JSON error response, deriving the HTTP status from
// the error kind. Errors that are not *api.Error are wrapped as upstream
// failures first. Rate limit responses carry a Retry-After header when
// the backend supplied a hint.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		apiErr = api.NewUpstreamError(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	if apiErr.Kind == api.ErrorKindRateLimited && apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(apiErr.RetryAfter.Seconds())))
	}
	w.WriteHeader(HTTPStatusFromError(apiErr))
	json.NewEncoder(w).Encode(errorEnvelope{Error: apiErr})
}

// WriteErrorStatus writes a JSON error response with an explicit status
// code, for cases the kind mapping does not cover (404 on an absent
// session, 501 on an unconfigured backend).
func WriteErrorStatus(w http.ResponseWriter, apiErr *api.Error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: apiErr})
}
