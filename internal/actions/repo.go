package actions

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/shell"
)

// RepoAction clones a git repository. An existing checkout is left alone.
type RepoAction struct {
	Runner shell.Runner
	URL    string
	Dest   string
	Branch string
	Owner  string
}

func (a *RepoAction) Describe() string {
	return fmt.Sprintf("clone %s -> %s", a.URL, a.Dest)
}

func (a *RepoAction) Check(ctx context.Context) guard.Result {
	return guard.PathExists{Path: filepath.Join(a.Dest, ".git")}.Check(ctx)
}

func (a *RepoAction) Run(ctx context.Context) error {
	args := []string{"git", "clone", "--depth", "1"}
	if a.Branch != "" {
		args = append(args, "--branch", a.Branch)
	}
	args = append(args, "--", a.URL, a.Dest)
	c := command(args)
	c.Retries = 2
	if err := run(ctx, a.Runner, c); err != nil {
		return err
	}
	if a.Owner == "" {
		return nil
	}
	return run(ctx, a.Runner, shell.Command{Name: "chown", Args: []string{"-R", a.Owner, a.Dest}})
}
