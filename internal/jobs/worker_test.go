package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc_gateway/internal/backend"
	"doc_gateway/internal/models"
	"doc_gateway/internal/queue"
)

type stubConverter struct {
	calls   atomic.Int32
	failing int32 // first N calls fail
	err     error
	result  *backend.Result

	mu   sync.Mutex
	last backend.Request
}

func (s *stubConverter) Convert(ctx context.Context, req backend.Request) (*backend.Result, error) {
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()

	n := s.calls.Add(1)
	if n <= s.failing {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &backend.Result{Markdown: "converted", Pages: 1, ProcessingMS: 10}, nil
}

func (s *stubConverter) lastRequest() backend.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func TestWorkerPool_Success(t *testing.T) {
	f := newTrackerFixture(t, 10)
	converter := &stubConverter{}
	dlq := queue.NewMemoryDeadLetterQueue()

	pool := NewWorkerPool(f.tracker, f.queue, dlq, converter, 2, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	job, err := f.tracker.Submit(context.Background(), f.keyID, testRequest(), 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(context.Background(), job.ID, f.keyID, false)
		return err == nil && got.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	balance, err := f.ledger.Balance(context.Background(), f.keyID)
	require.NoError(t, err)
	assert.Equal(t, 8, balance)
}

func TestWorkerPool_UploadedContentReachesBackend(t *testing.T) {
	f := newTrackerFixture(t, 10)
	converter := &stubConverter{}

	pool := NewWorkerPool(f.tracker, f.queue, nil, converter, 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	req := backend.Request{
		Source:  backend.Source{Data: "JVBERi0xLjQK", Filename: "doc.pdf"},
		Options: backend.Options{OutputFormat: "markdown", EnableOCR: true},
	}
	job, err := f.tracker.Submit(context.Background(), f.keyID, req, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(context.Background(), job.ID, f.keyID, false)
		return err == nil && got.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	seen := converter.lastRequest()
	assert.Equal(t, "JVBERi0xLjQK", seen.Source.Data)
	assert.Equal(t, "doc.pdf", seen.Source.Filename)
	assert.Empty(t, seen.Source.URL)
	assert.True(t, seen.Options.EnableOCR)
}

func TestWorkerPool_TerminalFailure(t *testing.T) {
	f := newTrackerFixture(t, 10)
	converter := &stubConverter{
		failing: 100,
		err:     &backend.Error{Reason: "unsupported document type", Retryable: false},
	}

	pool := NewWorkerPool(f.tracker, f.queue, nil, converter, 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	job, err := f.tracker.Submit(context.Background(), f.keyID, testRequest(), 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(context.Background(), job.ID, f.keyID, false)
		return err == nil && got.State == models.JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := f.tracker.Status(context.Background(), job.ID, f.keyID, false)
	require.NoError(t, err)
	assert.Equal(t, "unsupported document type", *got.ErrorDetail)
	assert.False(t, *got.Retryable)

	// terminal failures do not retry
	assert.Equal(t, int32(1), converter.calls.Load())

	balance, err := f.ledger.Balance(context.Background(), f.keyID)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestWorkerPool_TransientFailureRetriesThenSucceeds(t *testing.T) {
	f := newTrackerFixture(t, 10)
	converter := &stubConverter{
		failing: 2,
		err:     &backend.Error{Reason: "backend overloaded", Retryable: true, Status: 503},
	}

	pool := NewWorkerPool(f.tracker, f.queue, nil, converter, 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	job, err := f.tracker.Submit(context.Background(), f.keyID, testRequest(), 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(context.Background(), job.ID, f.keyID, false)
		return err == nil && got.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(3), converter.calls.Load())
}

func TestWorkerPool_RetriesExhaustedDeadLetters(t *testing.T) {
	f := newTrackerFixture(t, 10)
	converter := &stubConverter{
		failing: 100,
		err:     &backend.Error{Reason: "backend overloaded", Retryable: true, Status: 503},
	}
	dlq := queue.NewMemoryDeadLetterQueue()

	pool := NewWorkerPool(f.tracker, f.queue, dlq, converter, 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	job, err := f.tracker.Submit(context.Background(), f.keyID, testRequest(), 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(context.Background(), job.ID, f.keyID, false)
		return err == nil && got.State == models.JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := f.tracker.Status(context.Background(), job.ID, f.keyID, false)
	require.NoError(t, err)
	assert.True(t, *got.Retryable)
	assert.Equal(t, int32(maxDispatchAttempts), converter.calls.Load())

	items, err := dlq.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, job.ID, items[0].Dispatch.JobID)

	// failed work is never billed
	balance, err := f.ledger.Balance(context.Background(), f.keyID)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}
