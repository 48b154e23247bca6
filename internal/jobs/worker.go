package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"doc_gateway/internal/backend"
	"doc_gateway/internal/queue"
	"doc_gateway/internal/utils"
)

const maxDispatchAttempts = 3

// Converter is the slice of the backend client the workers need.
type Converter interface {
	Convert(ctx context.Context, req backend.Request) (*backend.Result, error)
}

// WorkerPool consumes dispatches and drives each job through the backend.
type WorkerPool struct {
	tracker   *Tracker
	queue     queue.Queue
	dlq       queue.DeadLetterQueue
	converter Converter
	workers   int
	logger    *utils.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorkerPool(tracker *Tracker, q queue.Queue, dlq queue.DeadLetterQueue, converter Converter, workers int, logger *utils.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = utils.NewLogger("job-worker", utils.Info)
	}
	return &WorkerPool{
		tracker:   tracker,
		queue:     q,
		dlq:       dlq,
		converter: converter,
		workers:   workers,
		logger:    logger,
	}
}

// Start launches the workers. They run until Stop or ctx cancellation.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("worker pool started", "workers", p.workers)
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			p.logger.Error("dequeue failed", "worker", id, "error", err)
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		p.process(ctx, d)
	}
}

func (p *WorkerPool) process(ctx context.Context, d queue.Dispatch) {
	// first attempt claims the queued job; retry attempts already own it
	// and just need the job to still be live
	if d.Attempt == 0 {
		claimed, err := p.tracker.MarkRunning(ctx, d.JobID)
		if err != nil {
			p.logger.Error("failed to claim job", "job_id", d.JobID, "error", err)
			return
		}
		if !claimed {
			return
		}
	}

	job, err := p.tracker.store.Get(ctx, d.JobID)
	if err != nil {
		p.logger.Error("failed to load job", "job_id", d.JobID, "error", err)
		return
	}
	if job.IsTerminal() {
		return
	}

	var src backend.Source
	if err := json.Unmarshal([]byte(job.Source), &src); err != nil {
		p.fail(ctx, d, "invalid stored source", false)
		return
	}
	var opts backend.Options
	if err := json.Unmarshal([]byte(job.Options), &opts); err != nil {
		p.fail(ctx, d, "invalid stored options", false)
		return
	}

	result, err := p.converter.Convert(ctx, backend.Request{
		Source:  src,
		Options: opts,
	})
	if err != nil {
		p.handleFailure(ctx, d, err)
		return
	}

	if _, err := p.tracker.Complete(ctx, d.JobID, result); err != nil {
		p.logger.Error("failed to complete job", "job_id", d.JobID, "error", err)
	}
}

func (p *WorkerPool) handleFailure(ctx context.Context, d queue.Dispatch, convErr error) {
	var be *backend.Error
	if errors.As(convErr, &be) && !be.Retryable {
		p.fail(ctx, d, be.Reason, false)
		return
	}

	// transient: requeue up to the attempt cap, then dead-letter
	if d.Attempt+1 < maxDispatchAttempts {
		d.Attempt++
		if err := p.requeue(ctx, d); err == nil {
			p.logger.Warn("requeued job after transient failure",
				"job_id", d.JobID, "attempt", d.Attempt, "error", convErr)
			return
		}
	}

	p.fail(ctx, d, convErr.Error(), true)
	if p.dlq != nil {
		if err := p.dlq.Add(ctx, d, convErr); err != nil {
			p.logger.Error("failed to dead-letter dispatch", "job_id", d.JobID, "error", err)
		}
	}
}

// requeue puts the dispatch back for a later attempt. The job row stays
// running while it waits.
func (p *WorkerPool) requeue(ctx context.Context, d queue.Dispatch) error {
	return p.queue.Enqueue(ctx, d)
}

func (p *WorkerPool) fail(ctx context.Context, d queue.Dispatch, reason string, retryable bool) {
	if _, err := p.tracker.Fail(ctx, d.JobID, reason, retryable); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", d.JobID, "error", err)
	}
}
