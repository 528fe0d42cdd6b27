package httpx

import (
	"context"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

type ctxKey struct{}

func WithSession(ctx context.Context, c jwtx.SessionClaims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// SessionFromContext returns the verified session attached by RequireSession.
func SessionFromContext(ctx context.Context) (jwtx.SessionClaims, bool) {
	c, ok := ctx.Value(ctxKey{}).(jwtx.SessionClaims)
	return c, ok
}

// UserIDFromContext returns the session subject or "".
func UserIDFromContext(ctx context.Context) string {
	if c, ok := SessionFromContext(ctx); ok {
		return c.Subject
	}
	return ""
}
