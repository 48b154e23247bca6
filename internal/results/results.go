package results

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrResultNotFound is returned when no output exists for a reference.
var ErrResultNotFound = errors.New("conversion result not found")

// Output is the stored product of a successful conversion.
type Output struct {
	JobID        uuid.UUID       `json:"job_id"`
	Markdown     string          `json:"markdown,omitempty"`
	JSON         json.RawMessage `json:"json,omitempty"`
	Pages        int             `json:"pages"`
	ProcessingMS int             `json:"processing_time_ms"`
	StoredAt     time.Time       `json:"stored_at"`
}

// Store persists conversion output and hands back an opaque reference.
// The reference is what lands in the job row's result_ref column.
type Store interface {
	// Put stores the output and returns its reference.
	Put(ctx context.Context, output *Output) (string, error)

	// Get loads the output behind a reference.
	Get(ctx context.Context, ref string) (*Output, error)

	// Delete removes the output; deleting a missing reference is a no-op.
	Delete(ctx context.Context, ref string) error
}
