package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc_gateway/internal/auth"
	"doc_gateway/internal/config"
	"doc_gateway/internal/utils"
)

func setupRegistry(t *testing.T) (*auth.Registry, string) {
	t.Helper()

	registry := auth.NewRegistry(auth.NewInMemoryKeyStore(nil))
	_, secret, err := registry.Issue(context.Background(), "middleware test", 5)
	require.NoError(t, err)
	return registry, secret
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := GetAPIKey(r.Context())
		if !ok || key == nil {
			t.Error("API key not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyMiddleware_BearerHeader(t *testing.T) {
	registry, secret := setupRegistry(t)
	handler := APIKeyMiddleware(registry)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/keys/me", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddleware_XAPIKeyHeader(t *testing.T) {
	registry, secret := setupRegistry(t)
	handler := APIKeyMiddleware(registry)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/keys/me", nil)
	req.Header.Set("X-API-Key", secret)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	registry, _ := setupRegistry(t)
	handler := APIKeyMiddleware(registry)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/keys/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, utils.KindUnauthenticated, resp.Kind)
}

func TestAPIKeyMiddleware_RevokedMatchesUnknown(t *testing.T) {
	registry, secret := setupRegistry(t)
	handler := APIKeyMiddleware(registry)(okHandler(t))

	keys, err := registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NoError(t, registry.Revoke(context.Background(), keys[0].ID))

	revoked := httptest.NewRecorder()
	reqRevoked := httptest.NewRequest(http.MethodGet, "/v1/keys/me", nil)
	reqRevoked.Header.Set("Authorization", "Bearer "+secret)
	handler.ServeHTTP(revoked, reqRevoked)

	unknown := httptest.NewRecorder()
	reqUnknown := httptest.NewRequest(http.MethodGet, "/v1/keys/me", nil)
	reqUnknown.Header.Set("Authorization", "Bearer dk_never-issued")
	handler.ServeHTTP(unknown, reqUnknown)

	assert.Equal(t, http.StatusUnauthorized, revoked.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, unknown.Body.String(), revoked.Body.String(),
		"revoked and unknown keys must be indistinguishable")
}

func TestAdminJWTMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: []byte("admin-test-secret")}

	handler := AdminJWTMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetAdminClaims(r.Context())
		if !ok || claims.AdminID != "admin-9" {
			t.Error("admin claims not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	token, _, err := auth.GenerateAdminJWT("admin-9", "admin@example.com", cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// missing and garbage tokens are rejected
	for _, header := range []string{"", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/admin/keys", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}
