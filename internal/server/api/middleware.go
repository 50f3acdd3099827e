package api

import (
	"context"
	"net/http"
	"strings"

	"wordledger/internal/server/auth"
)

type contextKey string

const usernameKey contextKey = "username"

// bearerAuth extracts and verifies the Authorization bearer token and stores
// the authenticated username in the request context.
func bearerAuth(secretKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				RespondWithError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			username, err := auth.GetUsernameFromToken(token, secretKey)
			if err != nil {
				RespondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// usernameFromContext returns the username stored by bearerAuth.
func usernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}
