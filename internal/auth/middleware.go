package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sojourn-loans/sojourn/internal/platform/httpx"
	"github.com/sojourn-loans/sojourn/internal/shared"
)

// Middleware authenticates bearer tokens and enforces roles.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate parses the Authorization header and installs the caller
// identity into the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		identity, err := m.Service.ParseAccessToken(token)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireRole rejects callers whose token carries a different role.
func (m Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil || identity.Role != role {
				if m.Logger != nil {
					m.Logger.Warn("role check failed", slog.String("path", r.URL.Path), slog.String("required", role))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
