package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Package queue carries conversion-job dispatches from the submit handler to
// the async workers. Two backends:
//
//  1. Memory (channel-based): no persistence, no external dependencies.
//     Queued work is lost on restart; suitable for standalone deployments.
//  2. Redis (list-based): survives restarts and supports distributed
//     workers sharing one queue.
//
// Dispatches that exhaust their processing retries land in a dead-letter
// queue for operator inspection.

// Dispatch is one unit of async work: the job to run and how many times a
// worker has already attempted it.
type Dispatch struct {
	JobID      uuid.UUID `json:"job_id"`
	KeyID      uuid.UUID `json:"key_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue hands dispatches to workers in FIFO order.
type Queue interface {
	// Enqueue adds a dispatch. Returns ErrQueueClosed after Close.
	Enqueue(ctx context.Context, d Dispatch) error

	// Dequeue blocks until a dispatch is available or ctx is done.
	Dequeue(ctx context.Context) (Dispatch, error)

	// Length returns the number of queued dispatches.
	Length(ctx context.Context) (int, error)

	// Close shuts the queue down; blocked Dequeue calls return.
	Close() error
}

// DeadLetterQueue records dispatches that could not be processed.
type DeadLetterQueue interface {
	Add(ctx context.Context, d Dispatch, cause error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem is a failed dispatch plus the error that killed it.
type DeadLetterItem struct {
	ID        string    `json:"id"`
	Dispatch  Dispatch  `json:"dispatch"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds queue backend configuration.
type Config struct {
	// QueueName namespaces the Redis keys for this queue.
	QueueName string

	// Capacity bounds the memory backend's buffer.
	Capacity int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns the memory-backend defaults.
func DefaultConfig(queueName string) *Config {
	return &Config{
		QueueName: queueName,
		Capacity:  1024,
	}
}
