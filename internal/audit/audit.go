// Package audit keeps a JSONL record of extraction requests. Entries carry
// sizes and counts only, never the submitted text.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"request_id"`
	Model     string         `json:"model"`
	Status    int            `json:"status"`
	Outcome   string         `json:"outcome"`
	TextBytes int            `json:"text_bytes"`
	Labels    []string       `json:"labels,omitempty"`
	Extracted map[string]int `json:"extracted,omitempty"`
	LatencyMs float64        `json:"latency_ms"`
	Error     string         `json:"error,omitempty"`
}

// ExtractedTotal sums Extracted over all labels.
func (e Entry) ExtractedTotal() int {
	n := 0
	for _, c := range e.Extracted {
		n += c
	}
	return n
}

type Logger interface {
	Log(entry Entry) error
}

type nopLogger struct{}

func (nopLogger) Log(Entry) error { return nil }

// Nop discards entries.
func Nop() Logger { return nopLogger{} }

type JSONLLogger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewJSONLLogger(path string) (*JSONLLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create audit log: %w", err)
	}
	_ = f.Close()
	return &JSONLLogger{path: path, now: time.Now}, nil
}

func (l *JSONLLogger) Path() string { return l.path }

// Log stamps the entry and appends it. Entries without a request ID get one.
func (l *JSONLLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
