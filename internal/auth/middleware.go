package auth

import (
	"context"
	"net/http"
	"strings"

	"alphaflow-backend/internal/store"
)

type contextKey int

const userKey contextKey = 0

// UserStore resolves users by id. Satisfied by *store.Store.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*store.User, error)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*store.User, bool) {
	user, ok := ctx.Value(userKey).(*store.User)
	return user, ok
}

// Middleware authenticates requests with a Bearer session token and puts
// the resolved user on the request context.
func Middleware(tokens *Tokens, users UserStore, reject func(w http.ResponseWriter, status int, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				reject(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			userID, err := tokens.VerifySession(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				reject(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			user, err := users.FindUserByID(r.Context(), userID)
			if err != nil {
				reject(w, http.StatusUnauthorized, "User not found")
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
