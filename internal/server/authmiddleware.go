package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/tjfontaine/stageline/internal/auth"
)

type callerKey struct{}

// AuthMiddleware guards operator endpoints with the configured API keys.
// The key is read from the Authorization header, with or without the
// Bearer prefix. The matched key is stored in the request context.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("Authorization")
			if apiKey == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}
			if len(apiKey) > 7 && strings.EqualFold(apiKey[:7], "bearer ") {
				apiKey = apiKey[7:]
			}

			key, err := authenticator.ValidateAPIKey(apiKey)
			if err != nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			AddLogField(r.Context(), "caller", key.UserID)
			ctx := context.WithValue(r.Context(), callerKey{}, &key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaller returns the API key that authenticated the request, or nil.
func GetCaller(ctx context.Context) *auth.Key {
	if k, ok := ctx.Value(callerKey{}).(*auth.Key); ok {
		return k
	}
	return nil
}
