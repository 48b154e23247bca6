package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// AuditEntry is one line in the request audit trail. It records billing-
// relevant facts about a gateway request; raw secrets and document bodies
// never appear here.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	KeyID      string    `json:"key_id,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	Status     int       `json:"status"`
	Outcome    string    `json:"outcome,omitempty"` // error kind on rejection
	Credits    int       `json:"credits,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	RemoteAddr string    `json:"remote_addr"`
}

// AuditLogger writes entries asynchronously to JSONL files with size-based
// rotation and a bounded cleanup of rotated files. Entries are dropped
// rather than blocking the request path when the buffer is full.
type AuditLogger struct {
	fileTemplate  string // e.g. "/var/log/doc-gateway/audit-%s.jsonl"
	maxSize       int64
	maxFiles      int
	flushInterval time.Duration

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	entryCh chan AuditEntry
	doneCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewAuditLogger opens the first log file and starts the writer goroutine.
func NewAuditLogger(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*AuditLogger, error) {
	l := &AuditLogger{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		entryCh:       make(chan AuditEntry, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Record queues an entry. Drops it when the buffer is full.
func (l *AuditLogger) Record(entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	select {
	case l.entryCh <- entry:
	default:
	}
}

// Shutdown drains the buffer, flushes, and closes the file.
func (l *AuditLogger) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.doneCh)
	l.wg.Wait()
}

func (l *AuditLogger) newFileName() string {
	now := time.Now()
	timestamp := fmt.Sprintf("%s-%09d", now.Format("20060102150405"), now.Nanosecond())
	return fmt.Sprintf(l.fileTemplate, timestamp)
}

func (l *AuditLogger) openFile() error {
	l.currentFile = l.newFileName()
	dir := filepath.Dir(l.currentFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(l.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	l.currentSize = fi.Size()
	l.file = file
	l.writer = bufio.NewWriter(file)
	return nil
}

func (l *AuditLogger) rotateIfNeeded(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentSize+int64(n) < l.maxSize {
		return nil
	}

	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := l.openFile(); err != nil {
		return err
	}

	// the file set only changes on rotation, so this is the one place the
	// retention bound needs enforcing
	return l.cleanupOldFiles()
}

func (l *AuditLogger) cleanupOldFiles() error {
	pattern := fmt.Sprintf(l.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, err1 := os.Stat(matches[i])
		fj, err2 := os.Stat(matches[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	excess := len(matches) - l.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
	return nil
}

func (l *AuditLogger) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.entryCh:
			l.writeEntry(entry)
		case <-ticker.C:
			l.mu.Lock()
			_ = l.writer.Flush()
			l.mu.Unlock()
		case <-l.doneCh:
			for {
				select {
				case entry := <-l.entryCh:
					l.writeEntry(entry)
				default:
					l.mu.Lock()
					_ = l.writer.Flush()
					_ = l.file.Close()
					l.mu.Unlock()
					return
				}
			}
		}
	}
}

func (l *AuditLogger) writeEntry(entry AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line := string(data) + "\n"
	n := len(line)
	_ = l.rotateIfNeeded(n)

	l.mu.Lock()
	_, _ = l.writer.WriteString(line)
	l.currentSize += int64(n)
	l.mu.Unlock()
}
