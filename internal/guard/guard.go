// Package guard answers "does this task still need to run?" without side
// effects. Every task supplies a Checker; the runner skips the task's action
// when the check reports Satisfied.
//
// A check that cannot decide reports Unknown. The runner treats Unknown as
// NeedsAction and logs a warning, so a broken check never silently skips
// required work.
package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/hostprep/internal/shell"
)

// Status is the tri-state answer of a check.
type Status int

const (
	NeedsAction Status = iota
	Satisfied
	Unknown
)

func (s Status) String() string {
	switch s {
	case Satisfied:
		return "satisfied"
	case NeedsAction:
		return "needs-action"
	default:
		return "unknown"
	}
}

// Result is a Status with a human-readable reason.
type Result struct {
	Status Status
	Reason string
}

// Satisfy returns a Satisfied result.
func Satisfy(format string, args ...any) Result {
	return Result{Status: Satisfied, Reason: fmt.Sprintf(format, args...)}
}

// Need returns a NeedsAction result.
func Need(format string, args ...any) Result {
	return Result{Status: NeedsAction, Reason: fmt.Sprintf(format, args...)}
}

// Fail returns an Unknown result for a check that errored.
func Fail(err error) Result {
	return Result{Status: Unknown, Reason: err.Error()}
}

// Checker inspects current system state. Implementations must not mutate it.
type Checker interface {
	Check(ctx context.Context) Result
}

// Func adapts a function to Checker.
type Func func(ctx context.Context) Result

func (f Func) Check(ctx context.Context) Result { return f(ctx) }

// Never always needs action; used for tasks with no meaningful state probe.
type Never struct{}

func (Never) Check(context.Context) Result {
	return Need("no idempotency check")
}

// All is satisfied only when every checker is. The first NeedsAction wins;
// otherwise any Unknown makes the whole result Unknown.
type All []Checker

func (a All) Check(ctx context.Context) Result {
	var unknown []string
	var reasons []string
	for _, c := range a {
		r := c.Check(ctx)
		switch r.Status {
		case NeedsAction:
			return r
		case Unknown:
			unknown = append(unknown, r.Reason)
		default:
			reasons = append(reasons, r.Reason)
		}
	}
	if len(unknown) > 0 {
		return Result{Status: Unknown, Reason: strings.Join(unknown, "; ")}
	}
	return Result{Status: Satisfied, Reason: strings.Join(reasons, "; ")}
}

// Any is satisfied as soon as one checker is. When none is, an Unknown child
// makes the result Unknown.
type Any []Checker

func (a Any) Check(ctx context.Context) Result {
	var unknown []string
	var reasons []string
	for _, c := range a {
		r := c.Check(ctx)
		switch r.Status {
		case Satisfied:
			return r
		case Unknown:
			unknown = append(unknown, r.Reason)
		default:
			reasons = append(reasons, r.Reason)
		}
	}
	if len(unknown) > 0 {
		return Result{Status: Unknown, Reason: strings.Join(unknown, "; ")}
	}
	return Result{Status: NeedsAction, Reason: strings.Join(reasons, "; ")}
}

// Shell is satisfied when the expression exits 0 (a user skip_if).
type Shell struct {
	Runner shell.Runner
	Expr   string
}

func (s Shell) Check(ctx context.Context) Result {
	ok, err := shell.Eval(ctx, s.Runner, s.Expr)
	if err != nil {
		return Fail(fmt.Errorf("skip_if %q: %w", s.Expr, err))
	}
	if ok {
		return Satisfy("skip_if %q succeeded", s.Expr)
	}
	return Need("skip_if %q failed", s.Expr)
}
