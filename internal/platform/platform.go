// Package platform detects facts about the host being provisioned: its
// operating system and distribution, the native package and service
// managers, and whether the process runs with root privileges.
package platform

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Current returns the runtime.GOOS value ("linux", "freebsd", "openbsd", …).
func Current() string {
	return runtime.GOOS
}

// ExpandPath expands a leading "~/" and environment variables in path.
func ExpandPath(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// PackageManagerOS maps a package manager name to the OS it runs on.
// Returns "" when the manager is not OS-specific.
func PackageManagerOS(manager string) string {
	switch manager {
	case "apt", "apt-get", "nala", "dnf", "yum", "pacman", "zypper", "apk", "snap":
		return "linux"
	case "pkg":
		return "freebsd"
	case "pkg_add":
		return "openbsd"
	case "brew":
		return "darwin"
	default:
		return "" // brew, snap, flatpak
	}
}

// LookPathFunc resolves an executable on PATH; exec.LookPath in production.
type LookPathFunc func(file string) (string, error)

// DetectPackageManager returns the native package manager for goos, probing
// PATH on Linux. It returns "" when none is found.
func DetectPackageManager(goos string, lookPath LookPathFunc) string {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	switch goos {
	case "freebsd", "dragonfly":
		return "pkg"
	case "openbsd":
		return "pkg_add"
	case "darwin":
		return "brew"
	}
	probes := []struct{ bin, manager string }{
		{"apt-get", "apt"},
		{"dnf", "dnf"},
		{"yum", "yum"},
		{"pacman", "pacman"},
		{"zypper", "zypper"},
		{"apk", "apk"},
	}
	for _, p := range probes {
		if _, err := lookPath(p.bin); err == nil {
			return p.manager
		}
	}
	return ""
}

// DetectServiceManager returns "systemd", "openrc" or "rc" (BSD rc.d).
func DetectServiceManager(goos string, lookPath LookPathFunc) string {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if goos != "linux" {
		return "rc"
	}
	if _, err := lookPath("systemctl"); err == nil {
		return "systemd"
	}
	if _, err := lookPath("rc-service"); err == nil {
		return "openrc"
	}
	return "systemd"
}

// OSRelease holds the fields of /etc/os-release that hostprep uses.
type OSRelease struct {
	ID         string
	IDLike     []string
	VersionID  string
	Codename   string
	PrettyName string
}

// ReadOSRelease parses an os-release file. A missing file yields an empty
// OSRelease and no error, which is normal on the BSDs.
func ReadOSRelease(path string) (OSRelease, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return OSRelease{}, nil
	}
	if err != nil {
		return OSRelease{}, err
	}
	defer f.Close()
	return parseOSRelease(f)
}

func parseOSRelease(r io.Reader) (OSRelease, error) {
	var rel OSRelease
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "ID":
			rel.ID = value
		case "ID_LIKE":
			rel.IDLike = strings.Fields(value)
		case "VERSION_ID":
			rel.VersionID = value
		case "VERSION_CODENAME":
			rel.Codename = value
		case "PRETTY_NAME":
			rel.PrettyName = value
		}
	}
	return rel, scanner.Err()
}
