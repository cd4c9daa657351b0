package transport

import (
	"fmt"
	"net/http"

	"github.com/quillgate/quillgate/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to JSON error responses. The server continues to accept
// new requests after a panic is recovered. If the handler already started
// writing a response, the second WriteHeader is a no-op and the client
// sees a truncated body.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					WriteError(w, api.NewUpstreamError(fmt.Sprintf("internal server error: %v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
