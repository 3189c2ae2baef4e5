package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/hostprep/internal/shell"
)

// PackageInstalled queries the package database for one package.
type PackageInstalled struct {
	Runner  shell.Runner
	Manager string
	Package string
}

func (p PackageInstalled) Check(ctx context.Context) Result {
	args := QueryArgs(p.Manager, p.Package)
	if args == nil {
		return Fail(fmt.Errorf("cannot query packages with %q", p.Manager))
	}
	c := shell.Command{Name: args[0], Args: args[1:]}
	res, err := p.Runner.Run(ctx, c)
	if err != nil {
		return Fail(err)
	}
	if installed(p.Manager, res) {
		return Satisfy("package %s installed", p.Package)
	}
	return Need("package %s not installed", p.Package)
}

// QueryArgs returns the command that asks whether pkg is installed, or nil
// when the manager has no side-effect-free query.
func QueryArgs(manager, pkg string) []string {
	switch manager {
	case "apt", "apt-get", "nala":
		return []string{"dpkg-query", "-W", "-f=${db:Status-Abbrev}", pkg}
	case "dnf", "yum", "zypper":
		return []string{"rpm", "-q", pkg}
	case "pacman":
		return []string{"pacman", "-Q", pkg}
	case "apk":
		return []string{"apk", "info", "-e", pkg}
	case "pkg":
		return []string{"pkg", "info", "-e", pkg}
	case "pkg_add":
		return []string{"pkg_info", "-e", pkg + "-*"}
	case "brew":
		return []string{"brew", "list", "--versions", pkg}
	case "snap":
		return []string{"snap", "list", pkg}
	case "flatpak":
		return []string{"flatpak", "info", pkg}
	default:
		return nil
	}
}

func installed(manager string, res shell.Result) bool {
	if res.ExitCode != 0 {
		return false
	}
	switch manager {
	case "apt", "apt-get", "nala":
		// dpkg-query exits 0 for removed-but-configured packages too.
		return strings.HasPrefix(res.Stdout, "ii")
	case "brew":
		return strings.TrimSpace(res.Stdout) != ""
	default:
		return true
	}
}
