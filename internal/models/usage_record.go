package models

import (
	"time"

	"github.com/google/uuid"
)

// Usage record outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRefunded = "refunded"
)

// UsageRecord is one append-only entry in the billing audit trail. A record
// is written in the same transaction as the balance change it describes.
// JobID is set for async conversions and refunds; refund idempotence keys
// off (job_id, outcome).
type UsageRecord struct {
	ID           uuid.UUID  `db:"id"`
	KeyID        uuid.UUID  `db:"key_id"`
	JobID        *uuid.UUID `db:"job_id"`
	Credits      int        `db:"credits"`
	Outcome      string     `db:"outcome"`
	Endpoint     string     `db:"endpoint"`
	ProcessingMS int        `db:"processing_ms"`
	CreatedAt    time.Time  `db:"created_at"`
}
