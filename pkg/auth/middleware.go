package auth

import (
	"log/slog"
	"net/http"

	"github.com/quillgate/quillgate/pkg/api"
	"github.com/quillgate/quillgate/pkg/transport"
)

// DefaultBypassPaths lists endpoints that skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/metrics"}

// Middleware creates HTTP middleware from a Chain. Bypass paths are
// served without authentication; everything else needs an accepted
// identity, which is injected into the request context.
func Middleware(chain *Chain, logger *slog.Logger, bypassPaths []string) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	bypass := make(map[string]bool, len(bypassPaths))
	for _, p := range bypassPaths {
		bypass[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Accept || result.Identity == nil || result.Identity.Subject == "" {
				logger.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
					"request_id", transport.RequestIDFromContext(r.Context()),
				)
				transport.WriteErrorStatus(w,
					api.NewAuthenticationError("authentication required"),
					http.StatusUnauthorized)
				return
			}

			logger.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), result.Identity)))
		})
	}
}
