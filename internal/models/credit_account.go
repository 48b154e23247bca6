package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditAccount tracks the prepaid balance for one API key. Balance never
// goes negative; the lifetime counters only increase. Rows are mutated only
// through ledger operations, never by request handlers.
type CreditAccount struct {
	KeyID            uuid.UUID `db:"key_id"`
	Balance          int       `db:"balance"`
	LifetimeIssued   int       `db:"lifetime_issued"`
	LifetimeConsumed int       `db:"lifetime_consumed"`
	UpdatedAt        time.Time `db:"updated_at"`
}
