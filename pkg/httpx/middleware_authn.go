package httpx

import (
	"net/http"
	"slices"
	"strings"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "gatehouse_session"

// RequireSession verifies the session token from the Authorization header or
// the session cookie. Only sessions in one of stages pass; with no stages
// given a full session is required.
func RequireSession(v jwtx.Verifier, stages ...jwtx.Stage) Middleware {
	if len(stages) == 0 {
		stages = []jwtx.Stage{jwtx.StageFull}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := SessionToken(r)
			if raw == "" {
				writeBearerError(w, "missing session token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("session verify failed", "err", err)
				writeBearerError(w, "session verification failed")
				return
			}

			if !slices.Contains(stages, claims.Stage) {
				WriteError(w, http.StatusForbidden, "mfa_required", "complete the second factor first")
				return
			}

			ctx := WithSession(r.Context(), claims)
			ctx = slogx.With(ctx, "user_id", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken extracts the raw token, preferring a bearer header.
func SessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
