package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/task"
)

// Task kinds, selected by which field of a Task is populated.
const (
	KindPackage   = "package"
	KindFile      = "file"
	KindService   = "service"
	KindUser      = "user"
	KindRun       = "run"
	KindScript    = "script"
	KindRepo      = "repo"
	KindSysctl    = "sysctl"
	KindArchive   = "archive"
	KindDirectory = "directory"
	KindUnknown   = "unknown"
)

// File formats.
const (
	FormatRaw      = "raw"
	FormatKeyValue = "keyvalue"
	FormatLines    = "lines"
)

// Task is one entry in the profile's task list.
type Task struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`

	// Package installation
	Package  string   `yaml:"package,omitempty"`
	Packages []string `yaml:"packages,omitempty"`

	// Config file
	File      string   `yaml:"file,omitempty"`
	Format    string   `yaml:"format,omitempty"` // raw | keyvalue | lines (default raw)
	Content   string   `yaml:"content,omitempty"`
	Template  string   `yaml:"template,omitempty"` // path to a template file
	Encrypted bool     `yaml:"encrypted,omitempty"`
	Settings  Settings `yaml:"settings,omitempty"`
	Separator string   `yaml:"separator,omitempty"`
	Lines     []string `yaml:"lines,omitempty"`

	// Service
	Service   string   `yaml:"service,omitempty"`
	Enable    *bool    `yaml:"enable,omitempty"`     // default true
	RestartOn []string `yaml:"restart_on,omitempty"` // IDs of earlier tasks

	// User account
	User   string   `yaml:"user,omitempty"`
	Shell  string   `yaml:"shell,omitempty"`
	Groups []string `yaml:"groups,omitempty"`

	// Inline command
	Run string `yaml:"run,omitempty"`

	// Script execution
	Script string `yaml:"script,omitempty"`

	// Git checkout
	Repo   string `yaml:"repo,omitempty"`
	Branch string `yaml:"branch,omitempty"`

	// Kernel parameter
	Sysctl string `yaml:"sysctl,omitempty"`
	Value  string `yaml:"value,omitempty"`

	// Downloaded archive or binary
	Archive string `yaml:"archive,omitempty"`
	Strip   int    `yaml:"strip,omitempty"`

	// Directory
	Directory string `yaml:"directory,omitempty"`

	// Shared fields
	Via      string `yaml:"via,omitempty"`      // package manager override, or script source ("local" | "remote")
	Dest     string `yaml:"dest,omitempty"`     // repo / archive destination
	Checksum string `yaml:"checksum,omitempty"` // sha256 pin for script / archive downloads
	Mode     string `yaml:"mode,omitempty"`     // Unix octal, e.g. "0600"
	Owner    string `yaml:"owner,omitempty"`    // "user" or "user:group"
	Retries  int    `yaml:"retries,omitempty"`

	// Failure handling
	Fatal      bool `yaml:"fatal,omitempty"`
	BestEffort bool `yaml:"best_effort,omitempty"`

	// Verbatim disables template rendering for this task.
	Verbatim bool `yaml:"verbatim,omitempty"`

	// Gating
	SkipIf      string   `yaml:"skip_if,omitempty"`
	OnlyTags    []string `yaml:"only_tags,omitempty"`
	ExcludeTags []string `yaml:"exclude_tags,omitempty"`
}

// Type returns the kind of this task.
func (t Task) Type() string {
	kinds := t.kinds()
	if len(kinds) == 0 {
		return KindUnknown
	}
	return kinds[0]
}

func (t Task) kinds() []string {
	var k []string
	if t.Package != "" || len(t.Packages) > 0 {
		k = append(k, KindPackage)
	}
	if t.File != "" {
		k = append(k, KindFile)
	}
	if t.Service != "" {
		k = append(k, KindService)
	}
	if t.User != "" {
		k = append(k, KindUser)
	}
	if t.Run != "" {
		k = append(k, KindRun)
	}
	if t.Script != "" {
		k = append(k, KindScript)
	}
	if t.Repo != "" {
		k = append(k, KindRepo)
	}
	if t.Sysctl != "" {
		k = append(k, KindSysctl)
	}
	if t.Archive != "" {
		k = append(k, KindArchive)
	}
	if t.Directory != "" {
		k = append(k, KindDirectory)
	}
	return k
}

// PrimaryValue returns the value of the field that determines the kind.
func (t Task) PrimaryValue() string {
	switch t.Type() {
	case KindPackage:
		return strings.Join(t.PackageList(), " ")
	case KindFile:
		return t.File
	case KindService:
		return t.Service
	case KindUser:
		return t.User
	case KindRun:
		return t.Run
	case KindScript:
		return t.Script
	case KindRepo:
		return t.Repo
	case KindSysctl:
		return t.Sysctl
	case KindArchive:
		return t.Archive
	case KindDirectory:
		return t.Directory
	default:
		return ""
	}
}

// PackageList merges Package and Packages.
func (t Task) PackageList() []string {
	var out []string
	if t.Package != "" {
		out = append(out, t.Package)
	}
	return append(out, t.Packages...)
}

// EffectiveFormat returns the file format, defaulting to raw.
func (t Task) EffectiveFormat() string {
	if t.Format == "" {
		return FormatRaw
	}
	return t.Format
}

// ServiceEnabled reports whether a service task should also enable the
// service at boot. Defaults to true.
func (t Task) ServiceEnabled() bool {
	return t.Enable == nil || *t.Enable
}

// Criticality returns the task's failure handling. Archives default to best
// effort; every other kind is fatal unless best_effort is set.
func (t Task) Criticality() task.Criticality {
	switch {
	case t.Fatal:
		return task.Fatal
	case t.BestEffort:
		return task.BestEffort
	case t.Type() == KindArchive:
		return task.BestEffort
	default:
		return task.Fatal
	}
}

// Validate checks the fields of a single task.
func (t Task) Validate() error {
	kinds := t.kinds()
	switch len(kinds) {
	case 0:
		return errors.New("no task kind set (package, file, service, user, run, script, repo, sysctl, archive or directory)")
	case 1:
	default:
		return fmt.Errorf("multiple task kinds set: %s", strings.Join(kinds, ", "))
	}
	if t.Fatal && t.BestEffort {
		return errors.New("fatal and best_effort are mutually exclusive")
	}
	if t.Mode != "" {
		if _, err := ParseMode(t.Mode); err != nil {
			return err
		}
	}
	if t.Retries < 0 {
		return errors.New("retries must not be negative")
	}
	if len(t.RestartOn) > 0 && kinds[0] != KindService {
		return errors.New("restart_on is only valid on service tasks")
	}

	switch kinds[0] {
	case KindPackage:
		if t.Via != "" && !SupportedPackageManager(t.Via) {
			return fmt.Errorf("unsupported package manager %q", t.Via)
		}
	case KindFile:
		switch t.EffectiveFormat() {
		case FormatRaw:
			if t.Content == "" && t.Template == "" {
				return errors.New("raw file needs content or template")
			}
			if t.Content != "" && t.Template != "" {
				return errors.New("content and template are mutually exclusive")
			}
			if t.Encrypted && t.Template == "" {
				return errors.New("encrypted requires template")
			}
		case FormatKeyValue:
			if len(t.Settings) == 0 {
				return errors.New("keyvalue file needs settings")
			}
		case FormatLines:
			if len(t.Lines) == 0 {
				return errors.New("lines file needs lines")
			}
		default:
			return fmt.Errorf("unknown file format %q", t.Format)
		}
	case KindScript:
		switch t.Via {
		case "", "local", "remote":
		default:
			return fmt.Errorf("unknown script source %q; expected \"remote\" or \"local\"", t.Via)
		}
	case KindRepo, KindArchive:
		if t.Dest == "" {
			return fmt.Errorf("%s needs dest", kinds[0])
		}
		if t.Strip < 0 {
			return errors.New("strip must not be negative")
		}
	case KindSysctl:
		if t.Value == "" {
			return errors.New("sysctl needs value")
		}
	}
	return nil
}

// SupportedPackageManager reports whether hostprep can both install with and
// query the package database of manager.
func SupportedPackageManager(manager string) bool {
	return guard.QueryArgs(manager, "x") != nil
}

// Setting is one key/value pair of a keyvalue file.
type Setting struct {
	Key   string
	Value string
}

// Settings is an ordered mapping; the profile's key order is kept so files
// are edited predictably.
type Settings []Setting

func (s *Settings) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: settings must be a mapping", n.Line)
	}
	out := make(Settings, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: setting %q must be a scalar", v.Line, k.Value)
		}
		out = append(out, Setting{Key: k.Value, Value: v.Value})
	}
	*s = out
	return nil
}

func (s Settings) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, kv := range s {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Value},
		)
	}
	return n, nil
}
