package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"doc_gateway/internal/auth"
	"doc_gateway/internal/models"
	"doc_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// APIKeyRecordKey is the context key for the authenticated API key
	APIKeyRecordKey ContextKey = "apiKeyRecord"
)

// APIKeyMiddleware authenticates the bearer secret and puts the key record
// on the request context. Unknown and revoked secrets get the same
// response.
func APIKeyMiddleware(registry *auth.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get("X-API-Key")
			if secret == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					secret = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}

			if secret == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, utils.KindUnauthenticated, "Missing API key")
				return
			}

			key, err := registry.Authenticate(r.Context(), secret)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					utils.RespondWithError(w, http.StatusUnauthorized, utils.KindUnauthenticated, "Invalid API key")
					return
				}
				utils.RespondWithError(w, http.StatusInternalServerError, utils.KindInternal, "Error validating API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyRecordKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey retrieves the authenticated key from the request context
func GetAPIKey(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(APIKeyRecordKey).(*models.APIKey)
	return key, ok
}
