package openaichat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/quillgate/quillgate/pkg/api"
)

// MapHTTPError converts a non-2xx backend response into an *api.Error.
// It reads a bounded slice of the body looking for the standard error
// shape to extract a descriptive message.
func MapHTTPError(resp *http.Response) *api.Error {
	message := extractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend rejected credentials"
		}
		return api.NewAuthenticationError(message)

	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewRateLimitedError(message, parseRetryAfter(resp.Header.Get("Retry-After")))

	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "backend rejected request"
		}
		return api.NewInvalidRequestError("", message)

	case resp.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		}
		e := api.NewUpstreamError(message)
		e.HTTPStatus = resp.StatusCode
		return e

	default:
		if message == "" {
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)
		}
		e := api.NewUpstreamError(message)
		e.HTTPStatus = resp.StatusCode
		return e
	}
}

// MapNetworkError converts a transport-level failure (connection refused,
// reset, timeout, DNS failure) into an *api.Error.
func MapNetworkError(err error) *api.Error {
	return api.NewNetworkError(fmt.Sprintf("backend connection error: %s", err.Error()))
}

// extractErrorMessage tries to parse the body as the standard error shape
// and returns the message if present.
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp chatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}

// parseRetryAfter interprets a Retry-After header value in seconds.
// Returns zero when absent or unparseable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
