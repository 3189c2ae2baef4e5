package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dunamismax/hostprep/internal/task"
)

func TestTaskType(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want string
	}{
		{"package", Task{Package: "git"}, KindPackage},
		{"packages", Task{Packages: []string{"git"}}, KindPackage},
		{"file", Task{File: "/etc/motd"}, KindFile},
		{"service", Task{Service: "sshd"}, KindService},
		{"user", Task{User: "alice"}, KindUser},
		{"run", Task{Run: "echo hi"}, KindRun},
		{"script", Task{Script: "setup.sh"}, KindScript},
		{"repo", Task{Repo: "https://example.com/x.git"}, KindRepo},
		{"sysctl", Task{Sysctl: "vm.swappiness"}, KindSysctl},
		{"archive", Task{Archive: "https://example.com/x.zip"}, KindArchive},
		{"directory", Task{Directory: "/srv"}, KindDirectory},
		{"unknown", Task{}, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Type(); got != tt.want {
				t.Errorf("Type() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrimaryValue(t *testing.T) {
	tests := []struct {
		task Task
		want string
	}{
		{Task{Package: "git", Packages: []string{"curl"}}, "git curl"},
		{Task{File: "/etc/motd"}, "/etc/motd"},
		{Task{Run: "echo hi"}, "echo hi"},
		{Task{}, ""},
	}
	for _, tt := range tests {
		if got := tt.task.PrimaryValue(); got != tt.want {
			t.Errorf("PrimaryValue() = %q, want %q", got, tt.want)
		}
	}
}

func TestCriticality(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want task.Criticality
	}{
		{"package default", Task{Package: "git"}, task.Fatal},
		{"run default", Task{Run: "true"}, task.Fatal},
		{"archive default", Task{Archive: "https://x/font.zip"}, task.BestEffort},
		{"archive forced fatal", Task{Archive: "https://x/font.zip", Fatal: true}, task.Fatal},
		{"package best effort", Task{Package: "git", BestEffort: true}, task.BestEffort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Criticality(); got != tt.want {
				t.Errorf("Criticality() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceEnabled(t *testing.T) {
	if !(Task{Service: "x"}).ServiceEnabled() {
		t.Error("services are enabled by default")
	}
	no := false
	if (Task{Service: "x", Enable: &no}).ServiceEnabled() {
		t.Error("enable: false should disable")
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr string
	}{
		{"ok package", Task{ID: "a", Package: "git"}, ""},
		{"no kind", Task{ID: "a"}, "no task kind"},
		{"two kinds", Task{ID: "a", Package: "git", Run: "x"}, "multiple task kinds"},
		{"fatal and best effort", Task{ID: "a", Run: "x", Fatal: true, BestEffort: true}, "mutually exclusive"},
		{"bad mode", Task{ID: "a", Directory: "/x", Mode: "rwx"}, "invalid mode"},
		{"raw without content", Task{ID: "a", File: "/x"}, "content or template"},
		{"content and template", Task{ID: "a", File: "/x", Content: "a", Template: "b"}, "mutually exclusive"},
		{"encrypted inline", Task{ID: "a", File: "/x", Content: "a", Encrypted: true}, "encrypted requires template"},
		{"keyvalue without settings", Task{ID: "a", File: "/x", Format: "keyvalue"}, "needs settings"},
		{"lines without lines", Task{ID: "a", File: "/x", Format: "lines"}, "needs lines"},
		{"unknown format", Task{ID: "a", File: "/x", Format: "ini"}, "unknown file format"},
		{"bad script via", Task{ID: "a", Script: "x", Via: "ftp"}, "unknown script source"},
		{"repo without dest", Task{ID: "a", Repo: "https://x"}, "needs dest"},
		{"archive without dest", Task{ID: "a", Archive: "https://x"}, "needs dest"},
		{"sysctl without value", Task{ID: "a", Sysctl: "vm.swappiness"}, "needs value"},
		{"negative retries", Task{ID: "a", Run: "x", Retries: -1}, "retries"},
		{"via known manager", Task{ID: "a", Package: "ripgrep", Via: "brew"}, ""},
		{"restart_on service", Task{ID: "a", Service: "sshd", RestartOn: []string{"b"}}, ""},
		{"restart_on non-service", Task{ID: "a", Run: "x", RestartOn: []string{"b"}}, "only valid on service"},
		{"via without query", Task{ID: "a", Package: "ripgrep", Via: "nix"}, "unsupported package manager"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestProfileValidateDuplicateID(t *testing.T) {
	p := &Profile{Tasks: []Task{
		{ID: "install-git", Package: "git"},
		{ID: "install-git", Package: "curl"},
	}}
	if err := p.Validate(); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Validate() = %v, want ErrDuplicateID", err)
	}
	if !errors.Is(ErrDuplicateID, task.ErrDuplicateID) {
		t.Error("config and task should share the duplicate-id sentinel")
	}
}

func TestProfileValidatePackageManager(t *testing.T) {
	p := &Profile{PackageManager: "nix", Tasks: []Task{{ID: "git", Package: "git"}}}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), `unsupported package_manager "nix"`) {
		t.Errorf("Validate() = %v", err)
	}
	p.PackageManager = "pkg"
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestProfileValidateRestartOn(t *testing.T) {
	p := &Profile{Tasks: []Task{
		{ID: "sshd-config", File: "/etc/ssh/sshd_config", Content: "Port 22\n"},
		{ID: "sshd", Service: "sshd", RestartOn: []string{"sshd-config"}},
	}}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	p.Tasks[1].RestartOn = []string{"sshd-confg"}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), `restart_on "sshd-confg" does not name an earlier task`) {
		t.Errorf("Validate() = %v", err)
	}
	// A later task cannot have changed anything yet.
	p.Tasks[0], p.Tasks[1] = p.Tasks[1], p.Tasks[0]
	p.Tasks[0].RestartOn = []string{"sshd-config"}
	if err := p.Validate(); err == nil {
		t.Error("forward reference accepted")
	}
}

func TestProfileValidateMissingID(t *testing.T) {
	p := &Profile{Tasks: []Task{{Package: "git"}}}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "missing id") {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostprep.yaml")
	data := `
username: sawyer
tags: [server, debian]
vars:
  ssh_port: 2222
tasks:
  - id: sshd-config
    file: /etc/ssh/sshd_config
    format: keyvalue
    settings:
      Port: "{{ .ssh_port }}"
      PermitRootLogin: "no"
      AllowUsers: sawyer
    mode: "0600"
  - id: font
    archive: https://example.com/font.zip
    dest: /usr/local/share/fonts/x
`
	os.WriteFile(path, []byte(data), 0o644)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Source != path || p.Username != "sawyer" {
		t.Errorf("profile = %+v", p)
	}
	if p.LogFile != DefaultLogFile || p.LogLevel != DefaultLogLevel || p.HistoryFile != DefaultHistoryFile {
		t.Errorf("defaults not applied: %+v", p)
	}
	if len(p.Tasks) != 2 {
		t.Fatalf("tasks = %d", len(p.Tasks))
	}
	want := Settings{{"Port", "{{ .ssh_port }}"}, {"PermitRootLogin", "no"}, {"AllowUsers", "sawyer"}}
	got := p.Tasks[0].Settings
	if len(got) != len(want) {
		t.Fatalf("settings = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("setting %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostprep.yaml")
	os.WriteFile(path, []byte("tasks:\n  - id: a\n    pakage: git\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("typo'd field should be rejected")
	}
}

func TestLoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostprep.yaml")
	os.WriteFile(path, nil, 0o644)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Tasks) != 0 || p.Vars == nil {
		t.Errorf("profile = %+v", p)
	}
}

func TestDefaultProfileIsValid(t *testing.T) {
	p, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if p.Source != EmbeddedSource {
		t.Errorf("Source = %q", p.Source)
	}
	if len(p.Tasks) == 0 {
		t.Fatal("embedded profile has no tasks")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("embedded profile invalid: %v", err)
	}
}

func TestResolve(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	p, err := Resolve(missing, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.Source != EmbeddedSource {
		t.Errorf("implicit missing path should fall back to the default, got %q", p.Source)
	}

	if _, err := Resolve(missing, true); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("explicit missing path should fail, got %v", err)
	}
}

func TestPreflightDefaults(t *testing.T) {
	p, err := Parse([]byte("tasks: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	pf := p.Preflight
	if pf.ConnectURL != DefaultConnectURL || pf.SnapshotDir != DefaultSnapshotDir || pf.SkipConnectivity || pf.SkipSnapshot {
		t.Errorf("preflight = %+v", pf)
	}
	if !slices.Contains(pf.SnapshotPaths, "/etc/ssh/sshd_config") || !slices.Contains(pf.SnapshotPaths, "/etc/netplan") {
		t.Errorf("snapshot paths = %v", pf.SnapshotPaths)
	}

	p, err = Parse([]byte("preflight:\n  skip_snapshot: true\n  snapshot_paths: [/etc/motd]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Preflight.SkipSnapshot || !slices.Equal(p.Preflight.SnapshotPaths, []string{"/etc/motd"}) {
		t.Errorf("preflight = %+v", p.Preflight)
	}
}

func TestApplyEnv(t *testing.T) {
	p := &Profile{
		Username: "admin",
		LogLevel: "info",
		Vars: map[string]any{
			"token":  "${API_TOKEN}",
			"nested": map[string]any{"home": "$HOME_DIR/x"},
			"port":   22,
		},
	}
	env := map[string]string{
		EnvUsername:      "sawyer",
		EnvLogLevel:      "debug",
		EnvAgePassphrase: "pw",
		"API_TOKEN":      "abc",
		"HOME_DIR":       "/home/sawyer",
	}
	p.ApplyEnv(func(k string) string { return env[k] })

	if p.Username != "sawyer" || p.LogLevel != "debug" || p.Age.Passphrase != "pw" {
		t.Errorf("overrides not applied: %+v", p)
	}
	if p.Vars["token"] != "abc" {
		t.Errorf("token = %v", p.Vars["token"])
	}
	if p.Vars["nested"].(map[string]any)["home"] != "/home/sawyer/x" {
		t.Errorf("nested = %v", p.Vars["nested"])
	}
	if p.Vars["port"] != 22 {
		t.Errorf("non-string vars must be left alone: %v", p.Vars["port"])
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostprep.env")
	os.WriteFile(path, []byte("HOSTPREP_TEST_ENVFILE_KEY=from-file\n"), 0o600)
	t.Setenv("HOSTPREP_TEST_ENVFILE_KEY", "")
	os.Unsetenv("HOSTPREP_TEST_ENVFILE_KEY")

	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("HOSTPREP_TEST_ENVFILE_KEY"); got != "from-file" {
		t.Errorf("env = %q", got)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("missing env file should fail")
	}
}

func TestSettingsMarshalRoundTrip(t *testing.T) {
	in := Task{ID: "x", File: "/etc/x", Format: FormatKeyValue, Settings: Settings{{"b", "no"}, {"a", "1"}}}
	data, err := yaml.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Task
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Settings) != 2 || out.Settings[0] != (Setting{"b", "no"}) || out.Settings[1] != (Setting{"a", "1"}) {
		t.Errorf("settings after round trip = %v", out.Settings)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("0640")
	if err != nil || m != 0o640 {
		t.Errorf("ParseMode(0640) = %v, %v", m, err)
	}
	if _, err := ParseMode("999"); err == nil {
		t.Error("non-octal mode should fail")
	}
	if _, err := ParseMode("17777"); err == nil {
		t.Error("out of range mode should fail")
	}
}
