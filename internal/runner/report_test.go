package runner

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/hostprep/internal/task"
)

func sampleReport(aborted bool) *Report {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	r := &Report{
		Total: 4,
		Start: start,
		End:   start.Add(12300 * time.Millisecond),
		Results: []task.Result{
			{Index: 0, TaskID: "install-git", Outcome: task.Succeeded},
			{Index: 1, TaskID: "sshd-config", Outcome: task.Skipped, Reason: "content up to date"},
			{Index: 2, TaskID: "nerd-font", Outcome: task.FailedWarning, Err: errors.New("download failed")},
		},
	}
	if aborted {
		r.Results = append(r.Results, task.Result{Index: 3, TaskID: "firewall", Outcome: task.FailedFatal, Err: errors.New("pfctl exit status 1")})
		r.Status = Status{Aborted: true, Index: 3, TaskID: "firewall"}
	}
	return r
}

func TestCounts(t *testing.T) {
	c := sampleReport(true).Counts()
	want := Counts{Succeeded: 1, Skipped: 1, Warned: 1, Failed: 1}
	if c != want {
		t.Errorf("Counts() = %+v, want %+v", c, want)
	}
}

func TestRenderCompleted(t *testing.T) {
	var buf bytes.Buffer
	r := sampleReport(false)
	r.Render(&buf)
	out := buf.String()
	for _, want := range []string{
		"4 planned, 3 reached",
		"succeeded:  1",
		"warnings:   1",
		"duration:   12.3s",
		"warning nerd-font: download failed",
		"status:     completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Render missing %q:\n%s", want, out)
		}
	}
	if r.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0 with only warnings", r.ExitCode())
	}
}

func TestRenderAborted(t *testing.T) {
	var buf bytes.Buffer
	r := sampleReport(true)
	r.Render(&buf)
	out := buf.String()
	if !strings.Contains(out, "aborted at task 4 (firewall)") {
		t.Errorf("Render missing abort status:\n%s", out)
	}
	if !strings.Contains(out, "reason:     pfctl exit status 1") {
		t.Errorf("Render missing abort reason:\n%s", out)
	}
	if r.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", r.ExitCode())
	}
}

func TestStatusString(t *testing.T) {
	if got := (Status{}).String(); got != "completed" {
		t.Errorf("String() = %q", got)
	}
}
