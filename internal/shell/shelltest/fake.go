// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"sync"

	"github.com/dunamismax/hostprep/internal/shell"
)

// Response is the scripted outcome of one command line.
type Response struct {
	Result shell.Result
	Err    error
}

// Fake records every command it is asked to run and answers from Responses,
// keyed by Command.String(). Unscripted commands exit 0 with no output.
type Fake struct {
	mu        sync.Mutex
	calls     []shell.Command
	Responses map[string]Response
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{Responses: make(map[string]Response)}
}

// On scripts the exit code and stdout for cmdline.
func (f *Fake) On(cmdline string, exitCode int, stdout string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[cmdline] = Response{Result: shell.Result{ExitCode: exitCode, Stdout: stdout}}
	return f
}

// Fail scripts a start failure for cmdline.
func (f *Fake) Fail(cmdline string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[cmdline] = Response{
		Result: shell.Result{ExitCode: -1},
		Err:    &shell.ExecutionError{Command: cmdline, Err: err},
	}
	return f
}

func (f *Fake) Run(ctx context.Context, c shell.Command) (shell.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if resp, ok := f.Responses[c.String()]; ok {
		return resp.Result, resp.Err
	}
	return shell.Result{}, nil
}

// Commands returns the command lines run so far, in order.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Calls returns the full commands run so far, in order.
func (f *Fake) Calls() []shell.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shell.Command(nil), f.calls...)
}

// Ran reports whether cmdline was run.
func (f *Fake) Ran(cmdline string) bool {
	for _, c := range f.Commands() {
		if c == cmdline {
			return true
		}
	}
	return false
}
