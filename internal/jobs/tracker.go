package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/backend"
	"doc_gateway/internal/ledger"
	"doc_gateway/internal/models"
	"doc_gateway/internal/queue"
	"doc_gateway/internal/results"
	"doc_gateway/internal/storage"
	"doc_gateway/internal/utils"
)

// Anomaly is a bookkeeping inconsistency found by the tracker or the
// reconciler. Anomalies are reported, never silently repaired.
type Anomaly struct {
	JobID      uuid.UUID `json:"job_id"`
	KeyID      uuid.UUID `json:"key_id"`
	Kind       string    `json:"kind"` // succeeded_unbilled | stuck_running
	Detail     string    `json:"detail"`
	ObservedAt time.Time `json:"observed_at"`
}

// Tracker owns the conversion-job state machine. States only move forward
// (queued -> running -> succeeded | failed); terminal writes are
// conditional so duplicate completions collapse into no-ops, and the debit
// fires exactly once per job, when the job first reaches succeeded.
type Tracker struct {
	store   Store
	ledger  *ledger.Service
	results results.Store
	queue   queue.Queue
	logger  *utils.Logger

	mu        sync.Mutex
	anomalies []Anomaly
}

func NewTracker(store Store, ledgerSvc *ledger.Service, resultStore results.Store, q queue.Queue, logger *utils.Logger) *Tracker {
	if logger == nil {
		logger = utils.NewLogger("jobs", utils.Info)
	}
	return &Tracker{
		store:   store,
		ledger:  ledgerSvc,
		results: resultStore,
		queue:   q,
		logger:  logger,
	}
}

// Submit creates a queued job with its price fixed now and hands it to the
// dispatch queue. Returns immediately with the queued job.
func (t *Tracker) Submit(ctx context.Context, keyID uuid.UUID, req backend.Request, credits int) (*models.ConversionJob, error) {
	opts, err := json.Marshal(req.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize options: %w", err)
	}

	// The full source is persisted, including uploaded document data, so
	// the worker replays exactly what the client submitted.
	source, err := json.Marshal(req.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize source: %w", err)
	}

	job := &models.ConversionJob{
		ID:      uuid.New(),
		KeyID:   keyID,
		State:   models.JobQueued,
		Source:  string(source),
		Options: string(opts),
		Credits: credits,
	}
	if err := t.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := t.queue.Enqueue(ctx, queue.Dispatch{
		JobID:      job.ID,
		KeyID:      keyID,
		EnqueuedAt: time.Now().UTC(),
	}); err != nil {
		// the job row stays queued; the reconciler will surface it
		t.logger.Error("failed to enqueue dispatch", "job_id", job.ID, "error", err)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	t.logger.Info("job submitted", "job_id", job.ID, "key_id", keyID, "credits", credits)
	return job, nil
}

// MarkRunning moves a queued job to running. Returns false if the job was
// already picked up or finished.
func (t *Tracker) MarkRunning(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return t.store.MarkRunning(ctx, jobID)
}

// Complete records a successful conversion: stores the output, writes the
// terminal state, then debits the fixed price. The debit happens only on
// the first completion; a duplicate call finds the job terminal and does
// nothing. A debit failure after the terminal write is the one state the
// tracker cannot roll forward or back, so it is recorded as a
// succeeded_unbilled anomaly and escalated instead of being hidden.
func (t *Tracker) Complete(ctx context.Context, jobID uuid.UUID, result *backend.Result) (*models.ConversionJob, error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	ref, err := t.results.Put(ctx, &results.Output{
		JobID:        jobID,
		Markdown:     result.Markdown,
		JSON:         result.JSON,
		Pages:        result.Pages,
		ProcessingMS: result.ProcessingMS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	updated, err := t.store.SetSucceeded(ctx, jobID, ref)
	if err != nil {
		return nil, err
	}
	if !updated {
		// lost the race against another worker; its debit stands
		return t.store.Get(ctx, jobID)
	}

	jid := jobID
	if _, err := t.ledger.Debit(ctx, job.KeyID, job.Credits, models.UsageRecord{
		JobID:        &jid,
		Outcome:      models.OutcomeSuccess,
		Endpoint:     "/v1/convert/async",
		ProcessingMS: result.ProcessingMS,
	}); err != nil {
		t.recordAnomaly(Anomaly{
			JobID:      jobID,
			KeyID:      job.KeyID,
			Kind:       "succeeded_unbilled",
			Detail:     fmt.Sprintf("debit of %d credits failed: %v", job.Credits, err),
			ObservedAt: time.Now().UTC(),
		})
	}

	return t.store.Get(ctx, jobID)
}

// Fail records a terminal failure. No debit is issued for failed work.
// Duplicate calls are no-ops.
func (t *Tracker) Fail(ctx context.Context, jobID uuid.UUID, reason string, retryable bool) (*models.ConversionJob, error) {
	updated, err := t.store.SetFailed(ctx, jobID, reason, retryable)
	if err != nil {
		return nil, err
	}
	if updated {
		t.logger.Info("job failed", "job_id", jobID, "reason", reason, "retryable", retryable)
	}
	return t.store.Get(ctx, jobID)
}

// Status returns the job if the requesting key owns it or the caller is an
// admin. Non-owners get ErrJobNotFound so job ids cannot be enumerated.
func (t *Tracker) Status(ctx context.Context, jobID, requestingKeyID uuid.UUID, admin bool) (*models.ConversionJob, error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !admin && job.KeyID != requestingKeyID {
		return nil, storage.ErrJobNotFound
	}
	return job, nil
}

func (t *Tracker) recordAnomaly(a Anomaly) {
	t.logger.Error("job anomaly", "kind", a.Kind, "job_id", a.JobID, "detail", a.Detail)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anomalies = append(t.anomalies, a)
}

// Anomalies returns the anomalies observed since startup, newest last.
func (t *Tracker) Anomalies() []Anomaly {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Anomaly, len(t.anomalies))
	copy(out, t.anomalies)
	return out
}

// Result loads the stored output behind a result reference.
func (t *Tracker) Result(ctx context.Context, ref string) (*results.Output, error) {
	return t.results.Get(ctx, ref)
}
