package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/models"
	"doc_gateway/internal/storage"
)

// MemoryStore is an in-process Store for tests and standalone runs. It also
// satisfies auth.AccountCreator so key issuance can seed a balance.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.CreditAccount
	records  map[uuid.UUID][]models.UsageRecord
	refunded map[uuid.UUID]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*models.CreditAccount),
		records:  make(map[uuid.UUID][]models.UsageRecord),
		refunded: make(map[uuid.UUID]bool),
	}
}

// CreateAccount seeds a credit account for a newly issued key.
func (m *MemoryStore) CreateAccount(keyID uuid.UUID, initialCredits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[keyID]; ok {
		return
	}
	m.accounts[keyID] = &models.CreditAccount{
		KeyID:          keyID,
		Balance:        initialCredits,
		LifetimeIssued: initialCredits,
		UpdatedAt:      time.Now().UTC(),
	}
	if initialCredits > 0 {
		m.appendLocked(keyID, models.UsageRecord{
			Credits:  initialCredits,
			Outcome:  models.OutcomeSuccess,
			Endpoint: "issue",
		})
	}
}

func (m *MemoryStore) appendLocked(keyID uuid.UUID, rec models.UsageRecord) {
	rec.ID = uuid.New()
	rec.KeyID = keyID
	rec.CreatedAt = time.Now().UTC()
	m.records[keyID] = append(m.records[keyID], rec)
}

func (m *MemoryStore) Debit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[keyID]
	if !ok {
		return 0, storage.ErrAccountNotFound
	}
	if acct.Balance < amount {
		return acct.Balance, storage.ErrInsufficientCredit
	}
	acct.Balance -= amount
	acct.LifetimeConsumed += amount
	acct.UpdatedAt = time.Now().UTC()

	rec.Credits = amount
	m.appendLocked(keyID, rec)
	return acct.Balance, nil
}

func (m *MemoryStore) Credit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[keyID]
	if !ok {
		return 0, storage.ErrAccountNotFound
	}
	acct.Balance += amount
	acct.LifetimeIssued += amount
	acct.UpdatedAt = time.Now().UTC()

	rec.Credits = amount
	m.appendLocked(keyID, rec)
	return acct.Balance, nil
}

func (m *MemoryStore) Refund(ctx context.Context, keyID uuid.UUID, amount int, jobID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[keyID]
	if !ok {
		return 0, storage.ErrAccountNotFound
	}
	if m.refunded[jobID] {
		return acct.Balance, nil
	}
	acct.Balance += amount
	acct.UpdatedAt = time.Now().UTC()
	m.refunded[jobID] = true

	jid := jobID
	m.appendLocked(keyID, models.UsageRecord{
		JobID:    &jid,
		Credits:  amount,
		Outcome:  models.OutcomeRefunded,
		Endpoint: "refund",
	})
	return acct.Balance, nil
}

func (m *MemoryStore) Balance(ctx context.Context, keyID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[keyID]
	if !ok {
		return 0, storage.ErrAccountNotFound
	}
	return acct.Balance, nil
}

func (m *MemoryStore) Account(ctx context.Context, keyID uuid.UUID) (*models.CreditAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[keyID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryStore) Usage(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.records[keyID]
	// newest first, like the repository query
	out := make([]models.UsageRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
