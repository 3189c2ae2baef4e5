// Package runner executes an ordered task list with fail-fast semantics.
//
// Tasks run strictly in order, one at a time. Each task's guard is consulted
// first; a satisfied guard skips the action. A failing Fatal task stops the run
// and no later task is executed or logged. A failing BestEffort task is
// recorded as a warning and the run continues.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/task"
)

// State is the lifecycle position of a Runner.
type State int

const (
	Pending State = iota
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return "aborted"
	}
}

// Recorder persists finished results. Errors are logged and otherwise ignored.
type Recorder interface {
	Record(res task.Result) error
}

// Options configures a Runner.
type Options struct {
	// DryRun evaluates guards but never runs actions.
	DryRun bool
	// Recorder, when set, receives every result as soon as it is final.
	Recorder Recorder
	// OnTransition is called on every state change with the index of the
	// current task (-1 outside Running).
	OnTransition func(s State, index int)
	// Changes, when set, is marked with the ID of every task whose action
	// ran successfully, or would have run in a dry run.
	Changes *task.ChangeSet
	// Now overrides time.Now.
	Now func() time.Time
}

// Runner orchestrates a single provisioning run.
type Runner struct {
	logger *slog.Logger
	opts   Options
	state  State
	index  int
}

// New creates a Runner. A nil logger discards output.
func New(logger *slog.Logger, opts Options) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{logger: logger, opts: opts, index: -1}
}

// State returns the current lifecycle state.
func (r *Runner) State() State { return r.state }

// Current returns the index of the running task, or -1.
func (r *Runner) Current() int { return r.index }

func (r *Runner) transition(s State, index int) {
	r.state = s
	r.index = index
	if r.opts.OnTransition != nil {
		r.opts.OnTransition(s, index)
	}
}

// ExecuteAll runs tasks in order and returns the report. It never returns an
// error; failures are reflected in the report's results and status.
func (r *Runner) ExecuteAll(ctx context.Context, tasks []task.Task) *Report {
	report := &Report{Total: len(tasks), Start: r.opts.Now()}
	r.transition(Pending, -1)

	for i, t := range tasks {
		r.transition(Running, i)
		res := r.execute(ctx, i, t)
		report.Results = append(report.Results, res)
		r.record(res)
		r.summarize(len(tasks), res)

		if res.Outcome == task.FailedFatal {
			report.Status = Status{Aborted: true, Index: i, TaskID: t.ID}
			report.End = r.opts.Now()
			r.transition(Aborted, -1)
			return report
		}
	}

	report.End = r.opts.Now()
	r.transition(Completed, -1)
	return report
}

func (r *Runner) execute(ctx context.Context, i int, t task.Task) task.Result {
	res := task.Result{
		Index:       i,
		TaskID:      t.ID,
		Description: t.Title(),
		Start:       r.opts.Now(),
	}
	finish := func(o task.Outcome) task.Result {
		res.Outcome = o
		res.End = r.opts.Now()
		return res
	}
	log := r.logger.With("task", t.ID)

	check := t.Check
	if check == nil {
		check = guard.Never{}
	}
	g := runCheck(ctx, check)
	switch g.Status {
	case guard.Satisfied:
		res.Reason = g.Reason
		return finish(task.Skipped)
	case guard.Unknown:
		log.Warn("idempotency check failed; running action anyway", "reason", g.Reason)
	default:
		log.Debug("check: " + g.Reason)
	}

	if r.opts.DryRun {
		res.Reason = "dry run: would " + t.Action.Describe()
		r.opts.Changes.Mark(t.ID)
		return finish(task.Skipped)
	}

	log.Debug("running action", "action", t.Action.Describe())
	if err := runAction(ctx, t.Action); err != nil {
		res.Err = err
		if t.Criticality == task.BestEffort {
			return finish(task.FailedWarning)
		}
		return finish(task.FailedFatal)
	}
	r.opts.Changes.Mark(t.ID)
	return finish(task.Succeeded)
}

// runCheck turns a panicking guard into Unknown.
func runCheck(ctx context.Context, c guard.Checker) (res guard.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = guard.Result{Status: guard.Unknown, Reason: fmt.Sprintf("check panicked: %v", p)}
		}
	}()
	return c.Check(ctx)
}

func runAction(ctx context.Context, a task.Action) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action panicked: %v", p)
		}
	}()
	return a.Run(ctx)
}

func (r *Runner) record(res task.Result) {
	if r.opts.Recorder == nil {
		return
	}
	if err := r.opts.Recorder.Record(res); err != nil {
		r.logger.Warn("could not record run history", "error", err)
	}
}

func (r *Runner) summarize(total int, res task.Result) {
	prefix := fmt.Sprintf("[%d/%d] %s", res.Index+1, total, res.TaskID)
	took := formatDuration(res.Duration())
	switch res.Outcome {
	case task.Succeeded:
		r.logger.Info(fmt.Sprintf("%s: ok (%s)", prefix, took))
	case task.Skipped:
		r.logger.Info(fmt.Sprintf("%s: skipped (%s)", prefix, res.Reason))
	case task.FailedWarning:
		r.logger.Warn(fmt.Sprintf("%s: failed, continuing (%s): %v", prefix, took, res.Err))
	case task.FailedFatal:
		r.logger.Error(fmt.Sprintf("%s: failed, aborting run (%s): %v", prefix, took, res.Err))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
