package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversion job states. Transitions only move forward:
// queued -> running -> succeeded | failed. Terminal states are written once.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// ConversionJob tracks one asynchronous conversion request.
type ConversionJob struct {
	ID          uuid.UUID  `db:"id"`
	KeyID       uuid.UUID  `db:"key_id"`
	State       string     `db:"state"`
	Source      string     `db:"source"`  // serialized document source (url or uploaded data)
	Options     string     `db:"options"` // serialized conversion options
	Credits     int        `db:"credits"` // price fixed at submission time
	ResultRef   *string    `db:"result_ref"`
	ErrorDetail *string    `db:"error_detail"`
	Retryable   *bool      `db:"retryable"`
	SubmittedAt time.Time  `db:"submitted_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *ConversionJob) IsTerminal() bool {
	return j.State == JobSucceeded || j.State == JobFailed
}

// CanTransitionTo reports whether moving to next respects the forward-only
// state machine.
func (j *ConversionJob) CanTransitionTo(next string) bool {
	switch j.State {
	case JobQueued:
		return next == JobRunning || next == JobSucceeded || next == JobFailed
	case JobRunning:
		return next == JobSucceeded || next == JobFailed
	default:
		return false
	}
}

// StuckSince reports whether the job has been running longer than grace.
func (j *ConversionJob) StuckSince(now time.Time, grace time.Duration) bool {
	return j.State == JobRunning && now.Sub(j.SubmittedAt) > grace
}
