// Package audit keeps an append-only JSON-lines history of every task result,
// so past runs on a host can be inspected after the terminal output is gone.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dunamismax/hostprep/internal/task"
)

// Entry records a single task result.
type Entry struct {
	Time        time.Time `json:"time"`
	Run         string    `json:"run"`
	Task        string    `json:"task"`
	Description string    `json:"description,omitempty"`
	Outcome     string    `json:"outcome"` // "succeeded" | "skipped" | "failed-warning" | "failed-fatal"
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
}

// NewEntry converts a result into a history entry for run.
func NewEntry(run string, res task.Result) Entry {
	e := Entry{
		Time:        res.End.UTC(),
		Run:         run,
		Task:        res.TaskID,
		Description: res.Description,
		Outcome:     res.Outcome.String(),
		Reason:      res.Reason,
		DurationMS:  res.Duration().Milliseconds(),
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// Log appends entries for one run to a history file.
type Log struct {
	mu   sync.Mutex
	path string
	run  string
}

// Open returns a Log writing to path. Each run is identified by its start
// time; the file is created on first write.
func Open(path string, started time.Time) *Log {
	return &Log{path: path, run: started.UTC().Format(time.RFC3339)}
}

// Path returns the history file path.
func (l *Log) Path() string { return l.path }

// Record appends res to the history file.
func (l *Log) Record(res task.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(NewEntry(l.run, res))
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
