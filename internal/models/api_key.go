package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey represents a client API key. The bearer secret is never stored;
// only its SHA-256 hash is persisted, and the raw secret is returned to the
// caller exactly once at creation. Keys are soft-revoked, never deleted.
type APIKey struct {
	ID         uuid.UUID  `db:"id"`
	Name       string     `db:"name"`
	KeyHash    string     `db:"key_hash"` // SHA-256 hash, unique
	Revoked    bool       `db:"revoked"`
	CreatedAt  time.Time  `db:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
}

// IsValid checks if the key may authenticate
func (k *APIKey) IsValid() bool {
	return !k.Revoked
}
