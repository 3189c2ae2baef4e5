package runner

import (
	"fmt"
	"io"
	"time"

	"github.com/dunamismax/hostprep/internal/color"
	"github.com/dunamismax/hostprep/internal/task"
)

// Exit codes derived from a report.
const (
	ExitOK      = 0
	ExitAborted = 1
)

// Status is either "completed fully" (the zero value) or "aborted at task".
type Status struct {
	Aborted bool
	Index   int
	TaskID  string
}

func (s Status) String() string {
	if !s.Aborted {
		return "completed"
	}
	return fmt.Sprintf("aborted at task %d (%s)", s.Index+1, s.TaskID)
}

// Report is the outcome of one ExecuteAll call.
type Report struct {
	Results []task.Result
	Status  Status
	Total   int // tasks planned, including those never reached
	Start   time.Time
	End     time.Time
}

// Counts tallies results by outcome.
type Counts struct {
	Succeeded int
	Skipped   int
	Warned    int
	Failed    int
}

// Counts tallies the report's results.
func (r *Report) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		switch res.Outcome {
		case task.Succeeded:
			c.Succeeded++
		case task.Skipped:
			c.Skipped++
		case task.FailedWarning:
			c.Warned++
		case task.FailedFatal:
			c.Failed++
		}
	}
	return c
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

// ExitCode is 0 for a completed run, even one with warnings, and 1 when a
// fatal task aborted it.
func (r *Report) ExitCode() int {
	if r.Status.Aborted {
		return ExitAborted
	}
	return ExitOK
}

// Failure returns the fatal result of an aborted run.
func (r *Report) Failure() (task.Result, bool) {
	if !r.Status.Aborted || len(r.Results) == 0 {
		return task.Result{}, false
	}
	return r.Results[len(r.Results)-1], true
}

// Render writes the human-readable summary block.
func (r *Report) Render(w io.Writer) {
	c := r.Counts()
	fmt.Fprintf(w, "\n%s\n", color.Bold("==> Run summary"))
	fmt.Fprintf(w, "  tasks:      %d planned, %d reached\n", r.Total, len(r.Results))
	fmt.Fprintf(w, "  succeeded:  %s\n", color.Green(fmt.Sprint(c.Succeeded)))
	fmt.Fprintf(w, "  skipped:    %s\n", color.Dim(fmt.Sprint(c.Skipped)))
	fmt.Fprintf(w, "  warnings:   %s\n", countStyle(c.Warned, color.Yellow)(fmt.Sprint(c.Warned)))
	fmt.Fprintf(w, "  failed:     %s\n", countStyle(c.Failed, color.Red)(fmt.Sprint(c.Failed)))
	fmt.Fprintf(w, "  duration:   %s\n", formatDuration(r.Duration()))

	for _, res := range r.Results {
		if res.Outcome == task.FailedWarning {
			fmt.Fprintf(w, "  %s %s: %v\n", color.Yellow("warning"), res.TaskID, res.Err)
		}
	}

	if f, ok := r.Failure(); ok {
		fmt.Fprintf(w, "  status:     %s\n", color.BoldRed(r.Status.String()))
		fmt.Fprintf(w, "  reason:     %v\n", f.Err)
		return
	}
	fmt.Fprintf(w, "  status:     %s\n", color.BoldGreen(r.Status.String()))
}

func countStyle(n int, style func(string) string) func(string) string {
	if n == 0 {
		return func(s string) string { return s }
	}
	return style
}
