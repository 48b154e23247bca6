package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/models"
	"doc_gateway/internal/storage"
)

// Store is the persistence contract for conversion jobs. Terminal writes
// are conditional: SetSucceeded and SetFailed return false when the job is
// already terminal, which is how duplicate completions become no-ops.
type Store interface {
	Create(ctx context.Context, job *models.ConversionJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.ConversionJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (bool, error)
	SetSucceeded(ctx context.Context, id uuid.UUID, resultRef string) (bool, error)
	SetFailed(ctx context.Context, id uuid.UUID, detail string, retryable bool) (bool, error)
	ListStuckRunning(ctx context.Context, cutoff time.Time) ([]models.ConversionJob, error)
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore implements Store in process memory for tests and standalone
// deployments.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.ConversionJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*models.ConversionJob)}
}

func (m *MemoryStore) Create(ctx context.Context, job *models.ConversionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.State == "" {
		job.State = models.JobQueued
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false, storage.ErrJobNotFound
	}
	if job.State != models.JobQueued {
		return false, nil
	}
	job.State = models.JobRunning
	return true, nil
}

func (m *MemoryStore) SetSucceeded(ctx context.Context, id uuid.UUID, resultRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false, storage.ErrJobNotFound
	}
	if job.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	job.State = models.JobSucceeded
	job.ResultRef = &resultRef
	job.CompletedAt = &now
	return true, nil
}

func (m *MemoryStore) SetFailed(ctx context.Context, id uuid.UUID, detail string, retryable bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false, storage.ErrJobNotFound
	}
	if job.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	job.State = models.JobFailed
	job.ErrorDetail = &detail
	job.Retryable = &retryable
	job.CompletedAt = &now
	return true, nil
}

func (m *MemoryStore) ListStuckRunning(ctx context.Context, cutoff time.Time) ([]models.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stuck []models.ConversionJob
	for _, job := range m.jobs {
		if job.State == models.JobRunning && job.SubmittedAt.Before(cutoff) {
			stuck = append(stuck, *job)
		}
	}
	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].SubmittedAt.Before(stuck[j].SubmittedAt)
	})
	return stuck, nil
}

func (m *MemoryStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, job := range m.jobs {
		if job.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			purged++
		}
	}
	return purged, nil
}
