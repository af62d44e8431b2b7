package middleware

import (
	"context"
	"net/http"

	"github.com/bryanwahyu/imageproof/internal/infra/auth"
)

type contextKey string

const OwnerKey contextKey = "owner"

// Authenticate resolves the caller and stores the owner id in the request
// context. It never rejects: anonymous requests pass with no owner and the
// service decides what they may see.
func Authenticate(a auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				next.ServeHTTP(w, r)
				return
			}
			if owner, ok := a.Authenticate(r); ok {
				r = r.WithContext(WithOwner(r.Context(), owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}

// OwnerFromContext returns the authenticated owner, or "" for anonymous.
func OwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(OwnerKey).(string); ok {
		return owner
	}
	return ""
}
