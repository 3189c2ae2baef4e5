package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/shell"
)

// PackageAction installs packages via the host's package manager.
type PackageAction struct {
	Runner   shell.Runner
	Manager  string // e.g. "apt", "dnf", "pkg"
	Packages []string
	Retries  int
}

func (a *PackageAction) Describe() string {
	return fmt.Sprintf("install %s via %s", strings.Join(a.Packages, ", "), a.Manager)
}

// Check is satisfied when every package is installed.
func (a *PackageAction) Check(ctx context.Context) guard.Result {
	all := make(guard.All, 0, len(a.Packages))
	for _, p := range a.Packages {
		all = append(all, guard.PackageInstalled{Runner: a.Runner, Manager: a.Manager, Package: p})
	}
	return all.Check(ctx)
}

func (a *PackageAction) Run(ctx context.Context) error {
	args, err := InstallArgs(a.Manager, a.Packages)
	if err != nil {
		return err
	}
	c := command(args)
	c.Retries = a.Retries
	if a.Manager == "apt" || a.Manager == "apt-get" || a.Manager == "nala" {
		c.Env = map[string]string{"DEBIAN_FRONTEND": "noninteractive"}
	}
	return run(ctx, a.Runner, c)
}

// InstallArgs returns the command + arguments needed to install pkgs with
// the given manager, non-interactively.
func InstallArgs(manager string, pkgs []string) ([]string, error) {
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages to install")
	}
	var base []string
	switch manager {
	case "apt", "apt-get":
		base = []string{"apt-get", "install", "-y"}
	case "nala":
		base = []string{"nala", "install", "-y"}
	case "dnf":
		base = []string{"dnf", "install", "-y"}
	case "yum":
		base = []string{"yum", "install", "-y"}
	case "zypper":
		base = []string{"zypper", "--non-interactive", "install"}
	case "pacman":
		base = []string{"pacman", "-S", "--noconfirm", "--needed"}
	case "apk":
		base = []string{"apk", "add"}
	case "pkg":
		base = []string{"pkg", "install", "-y"}
	case "pkg_add":
		base = []string{"pkg_add", "-I"}
	case "brew":
		base = []string{"brew", "install"}
	case "snap":
		base = []string{"snap", "install"}
	case "flatpak":
		base = []string{"flatpak", "install", "-y"}
	default:
		return nil, fmt.Errorf("unknown package manager: %q", manager)
	}
	return append(base, pkgs...), nil
}
