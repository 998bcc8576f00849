package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JournalFile is the journal's file name inside its directory.
const JournalFile = "runs.jsonl"

// RunEvent describes one scenario execution.
type RunEvent struct {
	Time     string   `json:"time"`
	Mode     string   `json:"mode"`
	Manager  string   `json:"manager"`
	Scenario string   `json:"scenario"`
	Step     *float64 `json:"step,omitempty"`
	Duration float64  `json:"duration_ms"`
	Columns  []string `json:"columns,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Journal writes run events to a JSONL file.
// It is safe for concurrent use. A nil Journal is safe to use;
// all methods are no-ops on nil receiver.
type Journal struct {
	mu   sync.Mutex
	file *os.File
}

// OpenJournal creates a journal writing to dir/runs.jsonl.
// At "info" level (the default) it returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func OpenJournal(dir string, level string) *Journal {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, JournalFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &Journal{file: f}
}

// Record writes ev as a single JSONL line. Time is filled in when empty.
// Safe to call on nil receiver.
func (j *Journal) Record(ev RunEvent) {
	if j == nil {
		return
	}
	if ev.Time == "" {
		ev.Time = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return
	}
	_, _ = j.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (j *Journal) Close() {
	if j == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		j.file.Close()
		j.file = nil
	}
}
