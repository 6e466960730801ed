package httpapi

import (
	"context"
	"net/http"
	"strings"
)

// Authenticate resolves the acting user from X-User-ID, falling back to a
// bearer token that carries the user id. It never rejects; RequireUser does.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if uid == "" {
			auth := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
				uid = strings.TrimSpace(token)
			}
		}
		if uid != "" {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, uid))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without an identity with 401.
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// UserID returns the authenticated user id, or "".
func UserID(ctx context.Context) string {
	s, _ := ctx.Value(userIDKey).(string)
	return s
}
