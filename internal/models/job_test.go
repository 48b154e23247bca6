package models

import (
	"testing"
	"time"
)

func TestConversionJob_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		expected bool
	}{
		{name: "queued to running", from: JobQueued, to: JobRunning, expected: true},
		{name: "queued to failed", from: JobQueued, to: JobFailed, expected: true},
		{name: "queued to succeeded", from: JobQueued, to: JobSucceeded, expected: true},
		{name: "running to succeeded", from: JobRunning, to: JobSucceeded, expected: true},
		{name: "running to failed", from: JobRunning, to: JobFailed, expected: true},
		{name: "running back to queued", from: JobRunning, to: JobQueued, expected: false},
		{name: "succeeded is terminal", from: JobSucceeded, to: JobFailed, expected: false},
		{name: "failed is terminal", from: JobFailed, to: JobRunning, expected: false},
		{name: "no terminal rewrite", from: JobSucceeded, to: JobSucceeded, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &ConversionJob{State: tt.from}
			if got := job.CanTransitionTo(tt.to); got != tt.expected {
				t.Errorf("CanTransitionTo(%q) from %q = %v, want %v", tt.to, tt.from, got, tt.expected)
			}
		})
	}
}

func TestConversionJob_IsTerminal(t *testing.T) {
	for _, state := range []string{JobQueued, JobRunning} {
		job := &ConversionJob{State: state}
		if job.IsTerminal() {
			t.Errorf("job in state %q should not be terminal", state)
		}
	}
	for _, state := range []string{JobSucceeded, JobFailed} {
		job := &ConversionJob{State: state}
		if !job.IsTerminal() {
			t.Errorf("job in state %q should be terminal", state)
		}
	}
}

func TestConversionJob_StuckSince(t *testing.T) {
	now := time.Now()
	grace := 10 * time.Minute

	running := &ConversionJob{State: JobRunning, SubmittedAt: now.Add(-15 * time.Minute)}
	if !running.StuckSince(now, grace) {
		t.Error("job running past grace should be stuck")
	}

	fresh := &ConversionJob{State: JobRunning, SubmittedAt: now.Add(-time.Minute)}
	if fresh.StuckSince(now, grace) {
		t.Error("recently started job should not be stuck")
	}

	done := &ConversionJob{State: JobSucceeded, SubmittedAt: now.Add(-time.Hour)}
	if done.StuckSince(now, grace) {
		t.Error("terminal job is never stuck")
	}
}
