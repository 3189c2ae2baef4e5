// Package config loads the hostprep profile: a static YAML description of
// the packages, files, users, services and commands a host should end up with.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dunamismax/hostprep/internal/task"
)

// Defaults for profile fields left empty.
const (
	DefaultPath        = "/etc/hostprep/hostprep.yaml"
	DefaultLogFile     = "/var/log/hostprep.log"
	DefaultLogLevel    = "info"
	DefaultCacheDir    = "/var/cache/hostprep"
	DefaultHistoryFile = "/var/lib/hostprep/history.jsonl"
	DefaultConnectURL  = "https://dns.google/"
	DefaultSnapshotDir = "/var/backups"
)

// DefaultSnapshotPaths are archived before a run when the profile does not
// name its own. Directories contribute their top-level files.
var DefaultSnapshotPaths = []string{
	"/etc/passwd",
	"/etc/group",
	"/etc/ssh/sshd_config",
	"/etc/hostname",
	"/etc/hosts",
	"/etc/fstab",
	"/etc/sudoers",
	"/etc/netplan",
}

// EmbeddedSource is the Profile.Source of the built-in default profile.
const EmbeddedSource = "<embedded default>"

//go:embed default.yaml
var defaultProfile []byte

// ErrDuplicateID is returned when two tasks share an ID.
var ErrDuplicateID = task.ErrDuplicateID

// Profile is the top-level configuration.
type Profile struct {
	Username       string         `yaml:"username"`
	LogFile        string         `yaml:"log_file"`
	LogLevel       string         `yaml:"log_level"`
	PackageManager string         `yaml:"package_manager"`
	BackupDir      string         `yaml:"backup_dir"`
	CacheDir       string         `yaml:"cache_dir"`
	HistoryFile    string         `yaml:"history_file"`
	Tags           []string       `yaml:"tags"`
	RebootPrompt   bool           `yaml:"reboot_prompt"`
	Age            AgeConfig      `yaml:"age"`
	Preflight      Preflight      `yaml:"preflight"`
	Vars           map[string]any `yaml:"vars"`
	Tasks          []Task         `yaml:"tasks"`

	// Source is the file the profile was read from.
	Source string `yaml:"-"`
}

// AgeConfig holds the credentials used to decrypt encrypted file templates.
// Exactly one of Identity or Passphrase should be set.
type AgeConfig struct {
	Identity   string `yaml:"identity,omitempty"`   // path to age identity file
	Passphrase string `yaml:"passphrase,omitempty"` // scrypt passphrase
}

// Preflight configures the checks made before the first task runs.
type Preflight struct {
	// ConnectURL must answer an HTTP request before a run that downloads or
	// installs anything is allowed to start.
	ConnectURL       string `yaml:"connect_url"`
	SkipConnectivity bool   `yaml:"skip_connectivity"`

	// SnapshotDir receives config_snapshot_<stamp>.tar.gz of SnapshotPaths.
	SnapshotDir   string   `yaml:"snapshot_dir"`
	SnapshotPaths []string `yaml:"snapshot_paths"`
	SkipSnapshot  bool     `yaml:"skip_snapshot"`
}

// Load reads and parses the profile at path. Unknown fields are rejected.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Source = path
	return p, nil
}

// Default returns the embedded default profile.
func Default() (*Profile, error) {
	p, err := Parse(defaultProfile)
	if err != nil {
		return nil, fmt.Errorf("embedded profile: %w", err)
	}
	p.Source = EmbeddedSource
	return p, nil
}

// Resolve loads path. When the path was not given explicitly and does not
// exist, the embedded default profile is used instead.
func Resolve(path string, explicit bool) (*Profile, error) {
	p, err := Load(path)
	if err == nil {
		return p, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return Default()
	}
	return nil, err
}

// Parse decodes a profile and fills in defaults.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	p.applyDefaults()
	return &p, nil
}

func (p *Profile) applyDefaults() {
	if p.LogFile == "" {
		p.LogFile = DefaultLogFile
	}
	if p.LogLevel == "" {
		p.LogLevel = DefaultLogLevel
	}
	if p.CacheDir == "" {
		p.CacheDir = DefaultCacheDir
	}
	if p.HistoryFile == "" {
		p.HistoryFile = DefaultHistoryFile
	}
	if p.Vars == nil {
		p.Vars = make(map[string]any)
	}
	if p.Preflight.ConnectURL == "" {
		p.Preflight.ConnectURL = DefaultConnectURL
	}
	if p.Preflight.SnapshotDir == "" {
		p.Preflight.SnapshotDir = DefaultSnapshotDir
	}
	if len(p.Preflight.SnapshotPaths) == 0 {
		p.Preflight.SnapshotPaths = slices.Clone(DefaultSnapshotPaths)
	}
}

// Validate checks the task list before anything runs.
func (p *Profile) Validate() error {
	if p.PackageManager != "" && !SupportedPackageManager(p.PackageManager) {
		return fmt.Errorf("unsupported package_manager %q", p.PackageManager)
	}
	seen := make(map[string]int, len(p.Tasks))
	for i, t := range p.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task %d: missing id", i+1)
		}
		if prev, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w %q (tasks %d and %d)", ErrDuplicateID, t.ID, prev+1, i+1)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %q: %w", t.ID, err)
		}
		for _, id := range t.RestartOn {
			if _, ok := seen[id]; !ok {
				return fmt.Errorf("task %q: restart_on %q does not name an earlier task", t.ID, id)
			}
		}
		seen[t.ID] = i
	}
	return nil
}

// ParseMode parses a Unix octal permission string such as "0600".
func ParseMode(s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q", s)
	}
	if v > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q", s)
	}
	return fs.FileMode(v), nil
}
