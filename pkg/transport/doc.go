// Package transport defines the HTTP error mapping and middleware chain
// for the quillgate HTTP/SSE boundary.
//
// The transport layer bridges external clients and the gateway. It
// deserializes incoming requests into the types defined in pkg/api,
// dispatches them to the gateway, and serializes responses back to the
// client in either synchronous (JSON) or streaming (SSE) format. The
// HTTP adapter itself lives in the http subpackage; this package holds
// the pieces shared with the adapter and its tests:
//
//   - the taxonomy-to-status mapping (HTTPStatusFromError) and the JSON
//     error envelope (WriteError),
//   - http.Handler middleware: panic recovery, request ID assignment
//     (X-Request-ID, generated with google/uuid when absent), and
//     structured request logging via log/slog.
//
// Middleware composes with Chain, outermost first.
package transport
