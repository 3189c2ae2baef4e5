package actions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dunamismax/hostprep/internal/fetch"
	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/shell/shelltest"
	"github.com/dunamismax/hostprep/internal/task"
)

var ctx = context.Background()

func TestGuardFallsBackToNever(t *testing.T) {
	a := &RunAction{Runner: shelltest.New(), Command: "true"}
	if got := Guard(a).Check(ctx).Status; got != guard.NeedsAction {
		t.Errorf("RunAction guard = %v, want needs-action", got)
	}
	d := &DirectoryAction{Path: t.TempDir()}
	if got := Guard(d).Check(ctx).Status; got != guard.Satisfied {
		t.Errorf("DirectoryAction guard = %v, want satisfied", got)
	}
}

func TestInstallArgs(t *testing.T) {
	tests := []struct {
		manager string
		want    string
	}{
		{"apt", "apt-get install -y git curl"},
		{"dnf", "dnf install -y git curl"},
		{"zypper", "zypper --non-interactive install git curl"},
		{"pacman", "pacman -S --noconfirm --needed git curl"},
		{"apk", "apk add git curl"},
		{"pkg", "pkg install -y git curl"},
		{"pkg_add", "pkg_add -I git curl"},
	}
	for _, tt := range tests {
		args, err := InstallArgs(tt.manager, []string{"git", "curl"})
		if err != nil {
			t.Fatalf("%s: %v", tt.manager, err)
		}
		if got := strings.Join(args, " "); got != tt.want {
			t.Errorf("InstallArgs(%s) = %q, want %q", tt.manager, got, tt.want)
		}
	}
	for _, m := range []string{"portage", "nix"} {
		if _, err := InstallArgs(m, []string{"git"}); err == nil {
			t.Errorf("InstallArgs(%s) should be an error", m)
		}
	}
	if _, err := InstallArgs("apt", nil); err == nil {
		t.Error("empty package list should be an error")
	}
}

func TestPackageAction(t *testing.T) {
	f := shelltest.New().
		On("dpkg-query -W -f=${db:Status-Abbrev} git", 0, "ii ").
		On("dpkg-query -W -f=${db:Status-Abbrev} curl", 1, "")
	a := &PackageAction{Runner: f, Manager: "apt", Packages: []string{"git", "curl"}}

	if got := a.Check(ctx).Status; got != guard.NeedsAction {
		t.Fatalf("Check = %v, want needs-action while curl is missing", got)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	calls := f.Calls()
	last := calls[len(calls)-1]
	if last.String() != "apt-get install -y git curl" {
		t.Errorf("install command = %q", last.String())
	}
	if last.Env["DEBIAN_FRONTEND"] != "noninteractive" {
		t.Error("apt installs should set DEBIAN_FRONTEND=noninteractive")
	}

	f.On("dpkg-query -W -f=${db:Status-Abbrev} curl", 0, "ii ")
	if got := a.Check(ctx).Status; got != guard.Satisfied {
		t.Errorf("Check after install = %v, want satisfied", got)
	}
}

func TestPackageActionFailure(t *testing.T) {
	f := shelltest.New().On("pkg install -y tmux", 1, "")
	a := &PackageAction{Runner: f, Manager: "pkg", Packages: []string{"tmux"}}
	if err := a.Run(ctx); err == nil {
		t.Error("nonzero exit should be an error")
	}
}

func TestServiceActionSystemd(t *testing.T) {
	f := shelltest.New().On("systemctl is-active --quiet ssh", 3, "")
	a := &ServiceAction{Runner: f, Manager: "systemd", Name: "ssh", Enable: true}
	if got := a.Check(ctx).Status; got != guard.NeedsAction {
		t.Fatalf("Check = %v", got)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.Ran("systemctl enable --now ssh") {
		t.Errorf("commands = %v", f.Commands())
	}

	f = shelltest.New()
	(&ServiceAction{Runner: f, Manager: "systemd", Name: "ssh"}).Run(ctx)
	if !f.Ran("systemctl start ssh") {
		t.Errorf("commands = %v", f.Commands())
	}
}

func TestServiceActionRC(t *testing.T) {
	f := shelltest.New().On("service sshd status", 1, "")
	a := &ServiceAction{Runner: f, Manager: "rc", Name: "sshd", Enable: true}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"sysrc sshd_enable=YES", "service sshd status", "service sshd start"}
	if got := f.Commands(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestServiceActionOpenRCAlreadyRunning(t *testing.T) {
	f := shelltest.New()
	a := &ServiceAction{Runner: f, Manager: "openrc", Name: "sshd", Enable: true}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if f.Ran("rc-service sshd start") {
		t.Error("a running service should not be started again")
	}
	if !f.Ran("rc-update add sshd default") {
		t.Errorf("commands = %v", f.Commands())
	}
}

func TestServiceActionRestartOnChange(t *testing.T) {
	tests := []struct {
		manager string
		enable  bool
		want    []string
	}{
		{"systemd", true, []string{"systemctl enable ssh", "systemctl restart ssh"}},
		{"systemd", false, []string{"systemctl restart ssh"}},
		{"openrc", true, []string{"rc-update add ssh default", "rc-service ssh restart"}},
		{"rc", true, []string{"sysrc ssh_enable=YES", "service ssh restart"}},
		{"rc", false, []string{"service ssh onerestart"}},
	}
	for _, tt := range tests {
		changes := task.NewChangeSet()
		f := shelltest.New()
		a := &ServiceAction{Runner: f, Manager: tt.manager, Name: "ssh", Enable: tt.enable,
			RestartOn: []string{"sshd-hardening"}, Changes: changes}

		changes.Mark("motd")
		if a.Check(ctx).Status != guard.Satisfied {
			t.Errorf("%s: unrelated change should not force a restart", tt.manager)
		}

		changes.Mark("sshd-hardening")
		res := a.Check(ctx)
		if res.Status != guard.NeedsAction || res.Reason != "sshd-hardening changed" {
			t.Errorf("%s: Check = %v %q", tt.manager, res.Status, res.Reason)
		}
		if got := a.Describe(); got != "restart service ssh (sshd-hardening changed)" {
			t.Errorf("Describe() = %q", got)
		}
		f = shelltest.New()
		a.Runner = f
		if err := a.Run(ctx); err != nil {
			t.Fatalf("%s: %v", tt.manager, err)
		}
		if got := f.Commands(); strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("%s enable=%v: commands = %v, want %v", tt.manager, tt.enable, got, tt.want)
		}
	}
}

func TestServiceActionUnknownManager(t *testing.T) {
	a := &ServiceAction{Runner: shelltest.New(), Manager: "launchd", Name: "x"}
	if err := a.Run(ctx); err == nil {
		t.Error("unknown manager should be an error")
	}
}

func TestUserAction(t *testing.T) {
	missing := func(name string) (*user.User, error) { return nil, user.UnknownUserError(name) }

	f := shelltest.New()
	a := &UserAction{Runner: f, OS: "linux", Name: "deploy", Shell: "/bin/bash", Groups: []string{"sudo", "adm"}, Lookup: missing}
	if got := a.Check(ctx).Status; got != guard.NeedsAction {
		t.Fatalf("Check = %v", got)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.Ran("useradd -m -s /bin/bash -G sudo,adm deploy") {
		t.Errorf("commands = %v", f.Commands())
	}

	f = shelltest.New()
	a = &UserAction{Runner: f, OS: "freebsd", Name: "deploy", Groups: []string{"wheel"}}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.Ran("pw useradd -n deploy -m -G wheel") {
		t.Errorf("commands = %v", f.Commands())
	}

	a = &UserAction{Runner: shelltest.New(), OS: "darwin", Name: "deploy"}
	if err := a.Run(ctx); err == nil {
		t.Error("darwin should be unsupported")
	}
}

func TestUserActionLookupError(t *testing.T) {
	broken := func(string) (*user.User, error) { return nil, errors.New("nss unavailable") }
	a := &UserAction{Name: "deploy", Lookup: broken}
	if got := a.Check(ctx).Status; got != guard.Unknown {
		t.Errorf("Check = %v, want unknown", got)
	}
}

func TestRunAction(t *testing.T) {
	f := shelltest.New().On("sh -c ufw allow 22/tcp", 1, "")
	a := &RunAction{Runner: f, Command: "ufw allow 22/tcp"}
	err := a.Run(ctx)
	if err == nil {
		t.Fatal("nonzero exit should be an error")
	}
	if !strings.Contains(a.Describe(), "ufw allow 22/tcp") {
		t.Errorf("Describe() = %q", a.Describe())
	}
}

func TestScriptActionRemote(t *testing.T) {
	body := []byte("echo remote\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	f := shelltest.New()
	a := &ScriptAction{Runner: f, Fetcher: fetch.New("", nil), Source: srv.URL + "/install.sh", Checksum: fetch.Sum(body)}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	calls := f.Calls()
	if len(calls) != 1 || calls[0].Name != "sh" {
		t.Fatalf("calls = %v", f.Commands())
	}
	// The temporary copy is removed once the script has run.
	if _, err := os.Stat(calls[0].Args[0]); !os.IsNotExist(err) {
		t.Errorf("temporary script %s still exists", calls[0].Args[0])
	}

	bad := &ScriptAction{Runner: f, Fetcher: fetch.New("", nil), Source: srv.URL + "/install.sh", Checksum: strings.Repeat("0", 64)}
	if err := bad.Run(ctx); !errors.Is(err, fetch.ErrChecksum) {
		t.Errorf("want ErrChecksum, got %v", err)
	}
}

func TestScriptActionLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.sh")
	os.WriteFile(path, []byte("true\n"), 0o755)

	f := shelltest.New()
	a := &ScriptAction{Runner: f, Source: path, Checksum: fetch.Sum([]byte("true\n"))}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.Ran("sh " + path) {
		t.Errorf("commands = %v", f.Commands())
	}

	a.Checksum = strings.Repeat("a", 64)
	if err := a.Run(ctx); err == nil {
		t.Error("mismatched local checksum should fail")
	}
}

func TestRepoAction(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "dotfiles")
	f := shelltest.New()
	a := &RepoAction{Runner: f, URL: "https://example.com/dotfiles.git", Dest: dest, Branch: "main", Owner: "deploy"}
	if got := a.Check(ctx).Status; got != guard.NeedsAction {
		t.Fatalf("Check = %v", got)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"git clone --depth 1 --branch main -- https://example.com/dotfiles.git " + dest,
		"chown -R deploy " + dest,
	}
	if got := f.Commands(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("commands = %v, want %v", got, want)
	}

	os.MkdirAll(filepath.Join(dest, ".git"), 0o755)
	if got := a.Check(ctx).Status; got != guard.Satisfied {
		t.Errorf("Check with checkout = %v", got)
	}
}

func TestSysctlAction(t *testing.T) {
	f := shelltest.New().On("sysctl -n net.ipv4.tcp_syncookies", 0, "0\n")
	a := &SysctlAction{Runner: f, OS: "linux", Key: "net.ipv4.tcp_syncookies", Value: "1"}
	if got := a.Check(ctx).Status; got != guard.NeedsAction {
		t.Fatalf("Check = %v", got)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.Ran("sysctl -w net.ipv4.tcp_syncookies=1") {
		t.Errorf("commands = %v", f.Commands())
	}

	f = shelltest.New()
	(&SysctlAction{Runner: f, OS: "freebsd", Key: "kern.securelevel", Value: "1"}).Run(ctx)
	if !f.Ran("sysctl kern.securelevel=1") {
		t.Errorf("commands = %v", f.Commands())
	}
}
