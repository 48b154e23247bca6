package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"doc_gateway/internal/models"
)

// LedgerRepository persists credit accounts and their usage audit trail.
// Balance changes and usage records commit in the same transaction, and
// debits are serialized per key by the conditional UPDATE, so two
// concurrent debits against one remaining credit can never both succeed.
type LedgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Debit atomically subtracts amount from the key's balance and appends the
// usage record. Returns the new balance, or ErrInsufficientCredit with the
// balance untouched.
func (r *LedgerRepository) Debit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowxContext(ctx, `
		UPDATE credit_accounts
		SET balance = balance - $2,
		    lifetime_consumed = lifetime_consumed + $2,
		    updated_at = NOW()
		WHERE key_id = $1 AND balance >= $2
		RETURNING balance
	`, keyID, amount).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			// No row matched: either the account is missing or the
			// balance is too low. Look again to tell the two apart.
			var current int
			lookupErr := tx.QueryRowxContext(ctx,
				`SELECT balance FROM credit_accounts WHERE key_id = $1`, keyID,
			).Scan(&current)
			if lookupErr == sql.ErrNoRows {
				return 0, ErrAccountNotFound
			}
			if lookupErr != nil {
				return 0, fmt.Errorf("failed to read balance: %w", lookupErr)
			}
			return current, ErrInsufficientCredit
		}
		return 0, fmt.Errorf("failed to debit account: %w", err)
	}

	if err := insertUsageRecord(ctx, tx, keyID, amount, rec); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit debit: %w", err)
	}

	return balance, nil
}

// Credit atomically adds amount to the key's balance and appends the usage
// record. Used for top-ups and the initial grant.
func (r *LedgerRepository) Credit(ctx context.Context, keyID uuid.UUID, amount int, rec models.UsageRecord) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowxContext(ctx, `
		UPDATE credit_accounts
		SET balance = balance + $2,
		    lifetime_issued = lifetime_issued + $2,
		    updated_at = NOW()
		WHERE key_id = $1
		RETURNING balance
	`, keyID, amount).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to credit account: %w", err)
	}

	if err := insertUsageRecord(ctx, tx, keyID, amount, rec); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit credit: %w", err)
	}

	return balance, nil
}

// Refund reverses an earlier debit for a job whose backend outcome turned
// out ambiguous. Idempotent per job: replaying a refund is a no-op that
// returns the current balance. The partial unique index on
// (job_id, outcome='refunded') closes the race between two replays.
func (r *LedgerRepository) Refund(ctx context.Context, keyID uuid.UUID, amount int, jobID uuid.UUID) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var alreadyRefunded bool
	err = tx.QueryRowxContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM usage_records WHERE job_id = $1 AND outcome = $2
		)
	`, jobID, models.OutcomeRefunded).Scan(&alreadyRefunded)
	if err != nil {
		return 0, fmt.Errorf("failed to check refund state: %w", err)
	}

	if alreadyRefunded {
		var balance int
		if err := tx.QueryRowxContext(ctx,
			`SELECT balance FROM credit_accounts WHERE key_id = $1`, keyID,
		).Scan(&balance); err != nil {
			return 0, fmt.Errorf("failed to read balance: %w", err)
		}
		return balance, nil
	}

	var balance int
	err = tx.QueryRowxContext(ctx, `
		UPDATE credit_accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE key_id = $1
		RETURNING balance
	`, keyID, amount).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to refund account: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_records (id, key_id, job_id, credits, outcome, endpoint)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), keyID, jobID, amount, models.OutcomeRefunded, "refund")
	if err != nil {
		// A concurrent replay won the unique index; treat as already refunded
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			tx.Rollback()
			return r.Balance(ctx, keyID)
		}
		return 0, fmt.Errorf("failed to record refund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit refund: %w", err)
	}

	return balance, nil
}

// Balance returns the current balance for a key
func (r *LedgerRepository) Balance(ctx context.Context, keyID uuid.UUID) (int, error) {
	var balance int
	err := r.db.conn.GetContext(ctx, &balance,
		`SELECT balance FROM credit_accounts WHERE key_id = $1`, keyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Account returns the full credit account for a key
func (r *LedgerRepository) Account(ctx context.Context, keyID uuid.UUID) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := r.db.conn.GetContext(ctx, &account, `
		SELECT key_id, balance, lifetime_issued, lifetime_consumed, updated_at
		FROM credit_accounts
		WHERE key_id = $1
	`, keyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// Usage returns the most recent usage records for a key
func (r *LedgerRepository) Usage(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	err := r.db.conn.SelectContext(ctx, &records, `
		SELECT id, key_id, job_id, credits, outcome, endpoint, processing_ms, created_at
		FROM usage_records
		WHERE key_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, keyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return records, nil
}

func insertUsageRecord(ctx context.Context, tx *sqlx.Tx, keyID uuid.UUID, amount int, rec models.UsageRecord) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records (id, key_id, job_id, credits, outcome, endpoint, processing_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, keyID, rec.JobID, amount, rec.Outcome, rec.Endpoint, rec.ProcessingMS)
	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	return nil
}
