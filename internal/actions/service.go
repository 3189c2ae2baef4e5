package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/shell"
	"github.com/dunamismax/hostprep/internal/task"
)

// ServiceAction starts a service and, when Enable is set, enables it at boot.
// When any task named in RestartOn has changed the host earlier in the run,
// the service is restarted instead, so it picks up new configuration.
type ServiceAction struct {
	Runner    shell.Runner
	Manager   string // "systemd", "openrc" or "rc"
	Name      string
	Enable    bool
	RestartOn []string
	Changes   *task.ChangeSet
}

func (a *ServiceAction) restartFor() (string, bool) {
	return a.Changes.Changed(a.RestartOn...)
}

func (a *ServiceAction) Describe() string {
	if id, ok := a.restartFor(); ok {
		return fmt.Sprintf("restart service %s (%s changed)", a.Name, id)
	}
	if a.Enable {
		return fmt.Sprintf("enable and start service %s", a.Name)
	}
	return fmt.Sprintf("start service %s", a.Name)
}

func (a *ServiceAction) Check(ctx context.Context) guard.Result {
	if id, ok := a.restartFor(); ok {
		return guard.Need("%s changed", id)
	}
	return guard.ServiceActive{Runner: a.Runner, Manager: a.Manager, Name: a.Name, Enabled: a.Enable}.Check(ctx)
}

func (a *ServiceAction) Run(ctx context.Context) error {
	if _, ok := a.restartFor(); ok {
		return a.restart(ctx)
	}
	switch a.Manager {
	case "systemd", "":
		if a.Enable {
			return run(ctx, a.Runner, command([]string{"systemctl", "enable", "--now", a.Name}))
		}
		return run(ctx, a.Runner, command([]string{"systemctl", "start", a.Name}))
	case "openrc":
		if a.Enable {
			if err := run(ctx, a.Runner, command([]string{"rc-update", "add", a.Name, "default"})); err != nil {
				return err
			}
		}
		return a.startIfStopped(ctx, []string{"rc-service", a.Name, "status"}, []string{"rc-service", a.Name, "start"})
	case "rc":
		start := []string{"service", a.Name, "onestart"}
		if a.Enable {
			rcvar := strings.ReplaceAll(a.Name, "-", "_") + "_enable=YES"
			if err := run(ctx, a.Runner, command([]string{"sysrc", rcvar})); err != nil {
				return err
			}
			start = []string{"service", a.Name, "start"}
		}
		return a.startIfStopped(ctx, []string{"service", a.Name, "status"}, start)
	default:
		return fmt.Errorf("unknown service manager %q", a.Manager)
	}
}

func (a *ServiceAction) restart(ctx context.Context) error {
	switch a.Manager {
	case "systemd", "":
		if a.Enable {
			if err := run(ctx, a.Runner, command([]string{"systemctl", "enable", a.Name})); err != nil {
				return err
			}
		}
		return run(ctx, a.Runner, command([]string{"systemctl", "restart", a.Name}))
	case "openrc":
		if a.Enable {
			if err := run(ctx, a.Runner, command([]string{"rc-update", "add", a.Name, "default"})); err != nil {
				return err
			}
		}
		return run(ctx, a.Runner, command([]string{"rc-service", a.Name, "restart"}))
	case "rc":
		if !a.Enable {
			return run(ctx, a.Runner, command([]string{"service", a.Name, "onerestart"}))
		}
		rcvar := strings.ReplaceAll(a.Name, "-", "_") + "_enable=YES"
		if err := run(ctx, a.Runner, command([]string{"sysrc", rcvar})); err != nil {
			return err
		}
		return run(ctx, a.Runner, command([]string{"service", a.Name, "restart"}))
	default:
		return fmt.Errorf("unknown service manager %q", a.Manager)
	}
}

// startIfStopped runs start unless status reports the service running;
// rc and openrc fail when asked to start a running service.
func (a *ServiceAction) startIfStopped(ctx context.Context, status, start []string) error {
	res, err := a.Runner.Run(ctx, shell.Command{Name: status[0], Args: status[1:]})
	if err != nil {
		return err
	}
	if res.Success() {
		return nil
	}
	return run(ctx, a.Runner, command(start))
}
