package handler

import (
	"context"
	"net/http"
	"slices"

	"github.com/albapepper/carebeat/internal/api/respond"
)

// Identity headers set by the upstream auth gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller identity stored by RequireRole.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireRole rejects requests without gateway identity headers (401) or
// whose role is not listed (403).
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{UserID: r.Header.Get(HeaderUserID), Role: r.Header.Get(HeaderUserRole)}
			if id.UserID == "" || id.Role == "" {
				respond.WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing caller identity")
				return
			}
			if !slices.Contains(roles, id.Role) {
				respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Role "+id.Role+" may not call this endpoint")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
