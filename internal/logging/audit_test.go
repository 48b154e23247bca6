package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestAuditLogger(t *testing.T, maxSize int64) (*AuditLogger, string) {
	t.Helper()

	tempDir := t.TempDir()
	fileTemplate := filepath.Join(tempDir, "audit-%s.jsonl")

	logger, err := NewAuditLogger(fileTemplate, maxSize, 5, 100, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	return logger, tempDir
}

func readAllEntries(t *testing.T, dir string) []AuditEntry {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	if err != nil {
		t.Fatalf("Failed to glob log files: %v", err)
	}

	var entries []AuditEntry
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", path, err)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			if line == "" {
				continue
			}
			var entry AuditEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				t.Fatalf("Invalid JSONL line %q: %v", line, err)
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func TestAuditLogger_RecordAndFlush(t *testing.T) {
	logger, dir := newTestAuditLogger(t, 10*1024)

	logger.Record(AuditEntry{
		Method:     "POST",
		Path:       "/v1/convert",
		KeyID:      "key-123",
		Status:     200,
		Credits:    1,
		LatencyMS:  42,
		RemoteAddr: "127.0.0.1:12345",
	})
	logger.Shutdown()

	entries := readAllEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Path != "/v1/convert" {
		t.Errorf("Expected path /v1/convert, got %s", entry.Path)
	}
	if entry.KeyID != "key-123" {
		t.Errorf("Expected key-123, got %s", entry.KeyID)
	}
	if entry.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestAuditLogger_RejectionOutcome(t *testing.T) {
	logger, dir := newTestAuditLogger(t, 10*1024)

	logger.Record(AuditEntry{
		Method:  "POST",
		Path:    "/v1/convert",
		Status:  429,
		Outcome: "rate_limited",
	})
	logger.Shutdown()

	entries := readAllEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Outcome != "rate_limited" {
		t.Errorf("Expected outcome rate_limited, got %s", entries[0].Outcome)
	}
}

func TestAuditLogger_Rotation(t *testing.T) {
	logger, dir := newTestAuditLogger(t, 256)

	for i := 0; i < 50; i++ {
		logger.Record(AuditEntry{
			Method: "GET",
			Path:   fmt.Sprintf("/v1/jobs/%d", i),
			Status: 200,
		})
	}
	logger.Shutdown()

	matches, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	if err != nil {
		t.Fatalf("Failed to glob: %v", err)
	}
	if len(matches) < 2 {
		t.Errorf("Expected rotation to produce multiple files, got %d", len(matches))
	}
	if len(matches) > 5 {
		t.Errorf("Expected at most 5 retained files, got %d", len(matches))
	}
}

func TestAuditLogger_ShutdownIdempotent(t *testing.T) {
	logger, _ := newTestAuditLogger(t, 1024)
	logger.Shutdown()
	logger.Shutdown()
}
