package actions

import (
	"context"
	"fmt"
	"os/user"
	"strings"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/shell"
)

// UserAction creates a local account with a home directory.
type UserAction struct {
	Runner shell.Runner
	OS     string // runtime.GOOS of the host
	Name   string
	Shell  string
	Groups []string
	// Lookup defaults to user.Lookup.
	Lookup func(name string) (*user.User, error)
}

func (a *UserAction) Describe() string {
	return fmt.Sprintf("create user %s", a.Name)
}

func (a *UserAction) Check(ctx context.Context) guard.Result {
	return guard.UserExists{Name: a.Name, Lookup: a.Lookup}.Check(ctx)
}

func (a *UserAction) Run(ctx context.Context) error {
	args, err := a.args()
	if err != nil {
		return err
	}
	return run(ctx, a.Runner, command(args))
}

func (a *UserAction) args() ([]string, error) {
	var args []string
	switch a.OS {
	case "freebsd", "dragonfly":
		args = []string{"pw", "useradd", "-n", a.Name, "-m"}
	case "darwin", "windows":
		return nil, fmt.Errorf("creating users is not supported on %s", a.OS)
	default:
		args = []string{"useradd", "-m"}
	}
	if a.Shell != "" {
		args = append(args, "-s", a.Shell)
	}
	if len(a.Groups) > 0 {
		args = append(args, "-G", strings.Join(a.Groups, ","))
	}
	if args[0] == "useradd" {
		args = append(args, a.Name)
	}
	return args, nil
}
