package guard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"os/user"
	"strings"

	"github.com/dunamismax/hostprep/internal/shell"
)

// ServiceActive is satisfied when the service is running and, if Enabled is
// set, also enabled at boot.
type ServiceActive struct {
	Runner  shell.Runner
	Manager string // "systemd", "openrc" or "rc"
	Name    string
	Enabled bool
}

func (s ServiceActive) Check(ctx context.Context) Result {
	var probes [][]string
	switch s.Manager {
	case "systemd", "":
		probes = append(probes, []string{"systemctl", "is-active", "--quiet", s.Name})
		if s.Enabled {
			probes = append(probes, []string{"systemctl", "is-enabled", "--quiet", s.Name})
		}
	case "openrc":
		probes = append(probes, []string{"rc-service", s.Name, "status"})
	case "rc":
		probes = append(probes, []string{"service", s.Name, "status"})
		if s.Enabled {
			probes = append(probes, []string{"service", s.Name, "enabled"})
		}
	default:
		return Fail(fmt.Errorf("unknown service manager %q", s.Manager))
	}
	for _, p := range probes {
		res, err := s.Runner.Run(ctx, shell.Command{Name: p[0], Args: p[1:]})
		if err != nil {
			return Fail(err)
		}
		if res.ExitCode != 0 {
			return Need("service %s: %s returned %d", s.Name, strings.Join(p, " "), res.ExitCode)
		}
	}
	return Satisfy("service %s active", s.Name)
}

// UserExists is satisfied when the account exists in the passwd database.
type UserExists struct {
	Name string
	// Lookup defaults to user.Lookup.
	Lookup func(name string) (*user.User, error)
}

func (u UserExists) Check(context.Context) Result {
	lookup := u.Lookup
	if lookup == nil {
		lookup = user.Lookup
	}
	_, err := lookup(u.Name)
	if err == nil {
		return Satisfy("user %s exists", u.Name)
	}
	var unknown user.UnknownUserError
	if errors.As(err, &unknown) {
		return Need("user %s does not exist", u.Name)
	}
	return Fail(fmt.Errorf("look up user %s: %w", u.Name, err))
}

// CommandExists is satisfied when Name resolves on PATH.
type CommandExists struct {
	Name     string
	LookPath func(string) (string, error)
}

func (c CommandExists) Check(context.Context) Result {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(c.Name)
	if err == nil {
		return Satisfy("%s found at %s", c.Name, path)
	}
	return Need("%s not on PATH", c.Name)
}

// SysctlEquals is satisfied when `sysctl -n Key` prints Value.
// Whitespace runs are normalised so "4096 87380 6291456" matches tab-separated output.
type SysctlEquals struct {
	Runner shell.Runner
	Key    string
	Value  string
}

func (s SysctlEquals) Check(ctx context.Context) Result {
	res, err := s.Runner.Run(ctx, shell.Command{Name: "sysctl", Args: []string{"-n", s.Key}})
	if err != nil {
		return Fail(err)
	}
	if res.ExitCode != 0 {
		return Fail(fmt.Errorf("sysctl -n %s: exit status %d", s.Key, res.ExitCode))
	}
	got := strings.Join(strings.Fields(res.Stdout), " ")
	want := strings.Join(strings.Fields(s.Value), " ")
	if got == want {
		return Satisfy("%s = %s", s.Key, want)
	}
	return Need("%s is %q, want %q", s.Key, got, want)
}
