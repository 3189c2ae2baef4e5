// Package actions implements the change behind each task kind.
//
// Every action satisfies task.Action. Actions that can probe whether their
// desired state is already in place also implement guard.Checker; the planner
// uses that check as the task's guard.
//
// Idempotency contracts per action type:
//   - PackageAction: queries the package database for every package.
//   - FileAction: compares the BLAKE3 digest of the rendered content with the
//     file on disk, plus mode and owner when configured.
//   - ServiceAction: asks the service manager whether the service is running
//     (and enabled, when Enable is set).
//   - UserAction: looks the account up in the passwd database.
//   - RepoAction: checks for <dest>/.git.
//   - SysctlAction: reads the current kernel value.
//   - ArchiveAction: checks that the destination exists.
//   - DirectoryAction: checks existence, mode and owner.
//   - RunAction, ScriptAction: no check; use skip_if.
package actions

import (
	"context"
	"io"
	"log/slog"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/shell"
	"github.com/dunamismax/hostprep/internal/task"
)

// Action is a single executable change produced from a profile task.
type Action = task.Action

// Idempotent is implemented by actions that can check their own state.
type Idempotent interface {
	Action
	guard.Checker
}

// Guard returns the action's own check, or guard.Never when it has none.
func Guard(a Action) guard.Checker {
	if c, ok := a.(guard.Checker); ok {
		return c
	}
	return guard.Never{}
}

// run executes c and turns a nonzero exit into an error.
func run(ctx context.Context, r shell.Runner, c shell.Command) error {
	res, err := r.Run(ctx, c)
	if err != nil {
		return err
	}
	return res.Err(c)
}

func command(argv []string) shell.Command {
	return shell.Command{Name: argv[0], Args: argv[1:], Mode: shell.StreamToLog}
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}
