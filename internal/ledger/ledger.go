package ledger

import (
	"context"

	"github.com/google/uuid"

	"doc_gateway/internal/models"
	"doc_gateway/internal/utils"
)

// Store is the persistence contract for credit accounting. Implementations
// must make Debit atomic per key: the balance change and the usage record
// commit together, and a debit that would drive the balance negative fails
// with storage.ErrInsufficientCredit leaving the balance untouched.
type Store interface {
	Debit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error)
	Credit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error)
	Refund(ctx context.Context, keyID uuid.UUID, amount int, jobID uuid.UUID) (int, error)
	Balance(ctx context.Context, keyID uuid.UUID) (int, error)
	Account(ctx context.Context, keyID uuid.UUID) (*models.CreditAccount, error)
	Usage(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error)
}

// Service fronts the credit ledger for the rest of the gateway.
type Service struct {
	store  Store
	logger *utils.Logger
}

func NewService(store Store, logger *utils.Logger) *Service {
	if logger == nil {
		logger = utils.NewLogger("ledger", utils.Info)
	}
	return &Service{store: store, logger: logger}
}

// Debit charges amount credits and appends the usage record in the same
// transaction. Returns the new balance.
func (s *Service) Debit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error) {
	balance, err := s.store.Debit(ctx, keyID, amount, rec)
	if err != nil {
		return balance, err
	}
	s.logger.Debug("debited credits", "key_id", keyID.String(), "credits", amount, "balance", balance)
	return balance, nil
}

// Credit adds amount credits (top-up or admin grant) and records it.
func (s *Service) Credit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error) {
	balance, err := s.store.Credit(ctx, keyID, amount, rec)
	if err != nil {
		return balance, err
	}
	s.logger.Info("credited account", "key_id", keyID.String(), "credits", amount, "balance", balance)
	return balance, nil
}

// Refund returns amount credits charged for jobID. Replaying a refund for
// the same job is a no-op that reports the current balance.
func (s *Service) Refund(ctx context.Context, keyID uuid.UUID, amount int, jobID uuid.UUID) (int, error) {
	balance, err := s.store.Refund(ctx, keyID, amount, jobID)
	if err != nil {
		return balance, err
	}
	s.logger.Info("refund applied", "key_id", keyID.String(), "job_id", jobID.String(), "credits", amount, "balance", balance)
	return balance, nil
}

func (s *Service) Balance(ctx context.Context, keyID uuid.UUID) (int, error) {
	return s.store.Balance(ctx, keyID)
}

func (s *Service) Account(ctx context.Context, keyID uuid.UUID) (*models.CreditAccount, error) {
	return s.store.Account(ctx, keyID)
}

func (s *Service) Usage(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	return s.store.Usage(ctx, keyID, limit)
}
