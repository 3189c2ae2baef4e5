package actions

import (
	"context"
	"fmt"

	"github.com/dunamismax/hostprep/internal/shell"
)

// RunAction executes an inline shell command declared in the profile, such
// as firewall rules. It has no check of its own; use skip_if.
type RunAction struct {
	Runner  shell.Runner
	Command string
	Retries int
}

func (a *RunAction) Describe() string {
	return fmt.Sprintf("run %q", a.Command)
}

func (a *RunAction) Run(ctx context.Context) error {
	c := shell.Sh(a.Command)
	c.Mode = shell.StreamToLog
	c.Retries = a.Retries
	return run(ctx, a.Runner, c)
}
