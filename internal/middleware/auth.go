package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type userIDKey struct{}

// UserIDFromContext returns the user authenticated by BearerAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok
}

// TokenVerifier returns the user ID of a valid token.
type TokenVerifier func(token string) (string, error)

// BearerAuth middleware authorizes request using Authorization: Bearer <TOKEN>.
// If token is missing or invalid then 401 response code is returned.
func BearerAuth(verify TokenVerifier, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Fields(r.Header.Get("Authorization"))
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		userID, err := verify(parts[1])
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("bearer token rejected")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}
