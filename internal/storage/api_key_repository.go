package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"doc_gateway/internal/models"
)

// APIKeyRepository handles API key database operations with caching
type APIKeyRepository struct {
	db    *DB
	cache *LRUCache
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{
		db:    db,
		cache: db.GetAPIKeyCache(),
	}
}

// GetByHash retrieves an API key by its secret hash (with caching).
// Revoked keys are returned too; the caller decides how to surface them.
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	if cached, found := r.cache.Get(keyHash); found {
		return cached.(*models.APIKey), nil
	}

	var key models.APIKey
	query := `
		SELECT id, name, key_hash, revoked, created_at, last_used_at
		FROM api_keys
		WHERE key_hash = $1
	`

	err := r.db.conn.GetContext(ctx, &key, query, keyHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	r.cache.Set(keyHash, &key)

	return &key, nil
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var key models.APIKey
	query := `
		SELECT id, name, key_hash, revoked, created_at, last_used_at
		FROM api_keys
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &key, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// CreateWithBalance creates an API key together with its credit account in
// one transaction. When initialCredits > 0 the issuance is recorded in the
// usage trail so balance and audit history never diverge.
func (r *APIKeyRepository) CreateWithBalance(ctx context.Context, key *models.APIKey, initialCredits int) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO api_keys (id, name, key_hash, revoked)
		VALUES ($1, $2, $3, FALSE)
		RETURNING created_at
	`, key.ID, key.Name, key.KeyHash).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_accounts (key_id, balance, lifetime_issued, lifetime_consumed)
		VALUES ($1, $2, $2, 0)
	`, key.ID, initialCredits)
	if err != nil {
		return fmt.Errorf("failed to create credit account: %w", err)
	}

	if initialCredits > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO usage_records (id, key_id, credits, outcome, endpoint)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), key.ID, initialCredits, models.OutcomeSuccess, "issue")
		if err != nil {
			return fmt.Errorf("failed to record initial credit grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key creation: %w", err)
	}

	return nil
}

// Revoke soft-revokes an API key. Rows are never deleted so the usage audit
// trail stays intact.
func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	var keyHash string
	err := r.db.conn.GetContext(ctx, &keyHash, `
		UPDATE api_keys SET revoked = TRUE WHERE id = $1
		RETURNING key_hash
	`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	// Drop the cached record so the revocation takes effect immediately
	r.cache.Delete(keyHash)

	return nil
}

// TouchLastUsed updates the last-used timestamp for a key
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}

// List returns all API keys, newest first
func (r *APIKeyRepository) List(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.conn.SelectContext(ctx, &keys, `
		SELECT id, name, key_hash, revoked, created_at, last_used_at
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}
