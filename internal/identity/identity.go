// Package identity carries the caller's user id, as asserted by the
// upstream authentication proxy, through request contexts.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Header is the request header holding the authenticated user id.
const Header = "X-User-ID"

type ctxKey struct{}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom extracts the user id from ctx.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// FromRequest reads the user id header.
func FromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Middleware rejects requests without a user id and stores it in the
// request context otherwise.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := FromRequest(r)
		if userID == "" {
			http.Error(w, "missing "+Header+" header", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}
