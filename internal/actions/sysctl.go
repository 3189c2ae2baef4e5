package actions

import (
	"context"
	"fmt"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/shell"
)

// SysctlAction sets a kernel parameter on the running system.
type SysctlAction struct {
	Runner shell.Runner
	OS     string
	Key    string
	Value  string
}

func (a *SysctlAction) Describe() string {
	return fmt.Sprintf("set %s = %s", a.Key, a.Value)
}

func (a *SysctlAction) Check(ctx context.Context) guard.Result {
	return guard.SysctlEquals{Runner: a.Runner, Key: a.Key, Value: a.Value}.Check(ctx)
}

func (a *SysctlAction) Run(ctx context.Context) error {
	args := []string{"sysctl"}
	if a.OS == "linux" {
		args = append(args, "-w")
	}
	args = append(args, a.Key+"="+a.Value)
	return run(ctx, a.Runner, shell.Command{Name: args[0], Args: args[1:]})
}
