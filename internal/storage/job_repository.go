package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/models"
)

// JobRepository persists conversion jobs. Terminal transitions are
// conditional UPDATEs so a duplicate completion callback changes nothing.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new queued job
func (r *JobRepository) Create(ctx context.Context, job *models.ConversionJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.State == "" {
		job.State = models.JobQueued
	}

	err := r.db.conn.QueryRowxContext(ctx, `
		INSERT INTO conversion_jobs (id, key_id, state, source, options, credits)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING submitted_at
	`, job.ID, job.KeyID, job.State, job.Source, job.Options, job.Credits).Scan(&job.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*models.ConversionJob, error) {
	var job models.ConversionJob
	err := r.db.conn.GetContext(ctx, &job, `
		SELECT id, key_id, state, source, options, credits, result_ref,
		       error_detail, retryable, submitted_at, completed_at
		FROM conversion_jobs
		WHERE id = $1
	`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// MarkRunning moves a queued job to running. Returns false when the job was
// not queued (already picked up or terminal).
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.conn.ExecContext(ctx, `
		UPDATE conversion_jobs SET state = $2
		WHERE id = $1 AND state = $3
	`, id, models.JobRunning, models.JobQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark job running: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// SetSucceeded writes the terminal success state exactly once. Returns
// false when the job was already terminal (duplicate completion callback).
func (r *JobRepository) SetSucceeded(ctx context.Context, id uuid.UUID, resultRef string) (bool, error) {
	result, err := r.db.conn.ExecContext(ctx, `
		UPDATE conversion_jobs
		SET state = $2, result_ref = $3, completed_at = NOW()
		WHERE id = $1 AND state NOT IN ($4, $5)
	`, id, models.JobSucceeded, resultRef, models.JobSucceeded, models.JobFailed)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// SetFailed writes the terminal failure state exactly once. Returns false
// when the job was already terminal.
func (r *JobRepository) SetFailed(ctx context.Context, id uuid.UUID, detail string, retryable bool) (bool, error) {
	result, err := r.db.conn.ExecContext(ctx, `
		UPDATE conversion_jobs
		SET state = $2, error_detail = $3, retryable = $4, completed_at = NOW()
		WHERE id = $1 AND state NOT IN ($5, $6)
	`, id, models.JobFailed, detail, retryable, models.JobSucceeded, models.JobFailed)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ListStuckRunning returns jobs that entered running before the cutoff and
// never reached a terminal state.
func (r *JobRepository) ListStuckRunning(ctx context.Context, cutoff time.Time) ([]models.ConversionJob, error) {
	var jobs []models.ConversionJob
	err := r.db.conn.SelectContext(ctx, &jobs, `
		SELECT id, key_id, state, source, options, credits, result_ref,
		       error_detail, retryable, submitted_at, completed_at
		FROM conversion_jobs
		WHERE state = $1 AND submitted_at < $2
		ORDER BY submitted_at
	`, models.JobRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}
	return jobs, nil
}

// PurgeTerminalBefore deletes terminal jobs completed before the cutoff.
// Usage records are untouched; the audit trail outlives job retention.
func (r *JobRepository) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.conn.ExecContext(ctx, `
		DELETE FROM conversion_jobs
		WHERE state IN ($1, $2) AND completed_at < $3
	`, models.JobSucceeded, models.JobFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
