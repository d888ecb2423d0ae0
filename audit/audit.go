// Package audit implements the Audit Logger: one JSON line per executed or
// skipped service, appended to a trace log keyed by correlation id.
//
// Grounded on original_source/coordinator_agent/utils.go's log_event
// (extended variant, which also records contract_input/contract_output) and
// on the append-only JSON-lines convention used throughout this codebase's
// processors.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one audit log line.
type Event struct {
	Timestamp       string            `json:"timestamp"`
	Agent           string            `json:"agent"`
	CorrelationID   string            `json:"correlation_id"`
	JWT             map[string]any    `json:"jwt"`
	Service         string            `json:"service"`
	URL             string            `json:"url"`
	Request         map[string]any    `json:"request"`
	Response        map[string]any    `json:"response"`
	Reason          string            `json:"reason,omitempty"`
	Query           string            `json:"query"`
	ContractInput   string            `json:"contract_input"`
	ContractOutput  string            `json:"contract_output"`
	ResolvedSources map[string]string `json:"resolved_sources,omitempty"`
}

// Logger appends Events to a JSON-lines file. Write failures are logged
// and swallowed; per §4.7/§7, audit logging never affects dispatch outcome.
type Logger struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewLogger creates a Logger writing to path, creating its parent
// directory if necessary.
func NewLogger(path string, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	return &Logger{path: path, logger: logger}, nil
}

// Log appends event as one JSON line. Failures are logged at Warn and
// otherwise ignored.
func (l *Logger) Log(event Event) {
	if event.JWT == nil {
		event.JWT = map[string]any{}
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Agent == "" {
		event.Agent = "coordinator-agent"
	}

	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal audit event", "error", err, "service", event.Service)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("failed to open audit log", "error", err, "path", l.path)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("failed to write audit event", "error", err, "path", l.path)
	}
}

// Read returns the full contents of the trace log as plain text.
func Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}
