package httpx

import (
	"net/http"
	"slices"
)

// RequireRole lets the request through only when the session's role is one
// of allowed. It must run after RequireSession.
func RequireRole(allowed ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := SessionFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing session")
				return
			}
			if !slices.Contains(allowed, c.Role) {
				WriteError(w, http.StatusForbidden, "insufficient_role", "this action requires a higher role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
