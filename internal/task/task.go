// Package task defines the unit of provisioning work and the record of its
// execution.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/hostprep/internal/guard"
)

// Criticality decides what a failing task does to the rest of the run.
type Criticality int

const (
	// Fatal failures abort the run: later tasks depend on this one.
	Fatal Criticality = iota
	// BestEffort failures are logged as warnings and the run continues.
	BestEffort
)

func (c Criticality) String() string {
	if c == BestEffort {
		return "best-effort"
	}
	return "fatal"
}

// Action performs the mutation of a task.
type Action interface {
	// Describe returns a human-readable summary of the action.
	Describe() string
	// Run performs the change.
	Run(ctx context.Context) error
}

// Task is a named, idempotent unit of provisioning work.
type Task struct {
	ID          string
	Description string
	Check       guard.Checker // nil means guard.Never
	Action      Action
	Criticality Criticality
}

// Title returns the description, or the action summary when there is none.
func (t Task) Title() string {
	if t.Description != "" {
		return t.Description
	}
	if t.Action != nil {
		return t.Action.Describe()
	}
	return t.ID
}

// ErrDuplicateID is returned by Validate when two tasks share an ID.
var ErrDuplicateID = errors.New("duplicate task id")

// Validate checks that every task has a unique, non-empty ID and an action.
func Validate(tasks []Task) error {
	seen := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("task %d has no id", i+1)
		}
		if prev, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w %q (tasks %d and %d)", ErrDuplicateID, t.ID, prev+1, i+1)
		}
		seen[t.ID] = i
		if t.Action == nil {
			return fmt.Errorf("task %q has no action", t.ID)
		}
	}
	return nil
}

// Outcome is the classification of a finished task.
type Outcome int

const (
	Succeeded Outcome = iota
	Skipped
	FailedWarning
	FailedFatal
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case FailedWarning:
		return "failed-warning"
	default:
		return "failed-fatal"
	}
}

// Failed reports whether the outcome is either kind of failure.
func (o Outcome) Failed() bool {
	return o == FailedWarning || o == FailedFatal
}

// Result records how one task ended. It is created once by the runner and
// never modified.
type Result struct {
	Index       int
	TaskID      string
	Description string
	Outcome     Outcome
	Reason      string // why the task was skipped
	Err         error  // why the task failed
	Start       time.Time
	End         time.Time
}

// Duration returns End - Start.
func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Detail returns the skip reason or failure message, if any.
func (r Result) Detail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Reason
}
