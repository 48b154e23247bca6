package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"doc_gateway/internal/models"
	"doc_gateway/internal/storage"
	"doc_gateway/internal/utils"
)

// ErrUnauthenticated is the single failure callers see for a bad, unknown,
// or revoked key. The cases are distinguished in the audit log only, never
// in the response, so key ids cannot be enumerated.
var ErrUnauthenticated = errors.New("unauthenticated")

// KeyStore persists API keys. Implemented by storage.APIKeyRepository and,
// for standalone/testing use, InMemoryKeyStore.
type KeyStore interface {
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	CreateWithBalance(ctx context.Context, key *models.APIKey, initialCredits int) error
	Revoke(ctx context.Context, id uuid.UUID) error
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]models.APIKey, error)
}

// Registry owns API key identity and lifecycle.
type Registry struct {
	store  KeyStore
	logger *utils.Logger
}

// NewRegistry creates a new key registry
func NewRegistry(store KeyStore) *Registry {
	return &Registry{
		store:  store,
		logger: utils.NewLogger("auth", utils.Info),
	}
}

// Issue creates a new API key with an initial credit balance. The raw
// secret is returned exactly once and never persisted or logged.
func (r *Registry) Issue(ctx context.Context, name string, initialCredits int) (*models.APIKey, string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	key := &models.APIKey{
		ID:      uuid.New(),
		Name:    name,
		KeyHash: HashSecret(secret),
	}

	if err := r.store.CreateWithBalance(ctx, key, initialCredits); err != nil {
		return nil, "", err
	}

	r.logger.Info("issued API key", "key_id", key.ID, "initial_credits", initialCredits)

	return key, secret, nil
}

// Authenticate resolves a presented secret to its key record. Unknown and
// revoked keys both come back as ErrUnauthenticated.
func (r *Registry) Authenticate(ctx context.Context, presentedSecret string) (*models.APIKey, error) {
	hash := HashSecret(presentedSecret)

	key, err := r.store.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			r.logger.Info("authentication failed", "reason", "unknown key")
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	// Lookup was by hash; the compare is constant time regardless.
	if !HashEqual(hash, key.KeyHash) {
		r.logger.Info("authentication failed", "reason", "hash mismatch")
		return nil, ErrUnauthenticated
	}

	if key.Revoked {
		r.logger.Info("authentication failed", "reason", "revoked key", "key_id", key.ID)
		return nil, ErrUnauthenticated
	}

	// Best effort; a failed touch must not fail the request
	if err := r.store.TouchLastUsed(ctx, key.ID); err != nil {
		r.logger.Warn("failed to update last used", "key_id", key.ID, "error", err)
	}

	return key, nil
}

// Revoke soft-revokes a key. Returns storage.ErrAPIKeyNotFound for unknown
// ids.
func (r *Registry) Revoke(ctx context.Context, keyID uuid.UUID) error {
	if err := r.store.Revoke(ctx, keyID); err != nil {
		return err
	}
	r.logger.Info("revoked API key", "key_id", keyID)
	return nil
}

// Get returns a key by id
func (r *Registry) Get(ctx context.Context, keyID uuid.UUID) (*models.APIKey, error) {
	return r.store.GetByID(ctx, keyID)
}

// List returns all keys, newest first
func (r *Registry) List(ctx context.Context) ([]models.APIKey, error) {
	return r.store.List(ctx)
}
