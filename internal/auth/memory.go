package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/models"
	"doc_gateway/internal/storage"
)

// AccountCreator lets the key store initialize a credit account at key
// creation without depending on a concrete ledger implementation.
type AccountCreator interface {
	CreateAccount(keyID uuid.UUID, initialCredits int)
}

// InMemoryKeyStore is a KeyStore for standalone deployments and tests.
type InMemoryKeyStore struct {
	mu       sync.RWMutex
	byHash   map[string]*models.APIKey
	byID     map[uuid.UUID]*models.APIKey
	accounts AccountCreator
}

// NewInMemoryKeyStore creates an empty in-memory key store. accounts may
// be nil when credit accounts are managed elsewhere.
func NewInMemoryKeyStore(accounts AccountCreator) *InMemoryKeyStore {
	return &InMemoryKeyStore{
		byHash:   make(map[string]*models.APIKey),
		byID:     make(map[uuid.UUID]*models.APIKey),
		accounts: accounts,
	}
}

func (s *InMemoryKeyStore) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byHash[keyHash]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}
	copied := *key
	return &copied, nil
}

func (s *InMemoryKeyStore) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}
	copied := *key
	return &copied, nil
}

func (s *InMemoryKeyStore) CreateWithBalance(ctx context.Context, key *models.APIKey, initialCredits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	key.CreatedAt = time.Now()

	stored := *key
	s.byHash[key.KeyHash] = &stored
	s.byID[key.ID] = &stored

	if s.accounts != nil {
		s.accounts.CreateAccount(key.ID, initialCredits)
	}
	return nil
}

func (s *InMemoryKeyStore) Revoke(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[id]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}
	key.Revoked = true
	return nil
}

func (s *InMemoryKeyStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[id]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *InMemoryKeyStore) List(ctx context.Context) ([]models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]models.APIKey, 0, len(s.byID))
	for _, key := range s.byID {
		keys = append(keys, *key)
	}
	return keys, nil
}
