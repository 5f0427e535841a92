package auth

import (
	"log/slog"
	"net/http"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/observability"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/health-check", "/metrics"}

// Middleware authenticates every request not on the bypass list, applies
// the rate limiter if one is given, and stores the identity and tenant in
// the request context.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"decision", result.Decision.String(),
					"error", result.Err,
				)
				transport.WriteAPIError(w, api.NewUnauthenticatedError("authentication required"))
				return
			}

			id := result.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}
			debug.Log("auth", "authenticated", "subject", id.Subject, "tier", id.Tier(), "path", r.URL.Path)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.Tier())
					observability.RateLimitRejectedTotal.WithLabelValues(id.Tier()).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			ctx := SetIdentity(r.Context(), id)
			if tenantID := id.TenantID(); tenantID != "" {
				ctx = storage.SetTenant(ctx, tenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
