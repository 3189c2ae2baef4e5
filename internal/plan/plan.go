// Package plan turns the tasks of a profile into runnable tasks: it drops
// tasks that do not apply to this host, renders template expressions, and
// pairs each action with its guard and criticality.
package plan

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dunamismax/hostprep/internal/actions"
	"github.com/dunamismax/hostprep/internal/ageutil"
	"github.com/dunamismax/hostprep/internal/backup"
	"github.com/dunamismax/hostprep/internal/config"
	"github.com/dunamismax/hostprep/internal/fetch"
	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/platform"
	"github.com/dunamismax/hostprep/internal/shell"
	"github.com/dunamismax/hostprep/internal/tags"
	"github.com/dunamismax/hostprep/internal/task"
	"github.com/dunamismax/hostprep/internal/template"
)

// Env is everything about the host that planning depends on.
type Env struct {
	Runner         shell.Runner
	Logger         *slog.Logger
	OS             string // runtime.GOOS
	PackageManager string // overridden per task by via
	ServiceManager string
	Tags           []string
	Vars           map[string]any
	Backups        backup.Store
	Fetcher        *fetch.Client
	Key            *ageutil.Key
	Changes        *task.ChangeSet // shared with the runner for restart_on
}

// Vars returns the template variables for p: the profile's vars plus
// username, os, arch, hostname, distro and tags. Profile vars win.
func Vars(p *config.Profile, goos string, osr platform.OSRelease, hostTags []string) map[string]any {
	vars := map[string]any{
		"username": p.Username,
		"os":       goos,
		"arch":     runtime.GOARCH,
		"distro":   osr.ID,
		"codename": osr.Codename,
		"tags":     hostTags,
	}
	if h, err := os.Hostname(); err == nil {
		vars["hostname"] = h
	}
	maps.Copy(vars, p.Vars)
	return vars
}

// Build returns the runnable tasks for p, in profile order.
func Build(p *config.Profile, env Env) ([]task.Task, error) {
	log := env.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var out []task.Task
	for _, item := range p.Tasks {
		if !tags.Matches(env.Tags, item.OnlyTags, item.ExcludeTags) {
			log.Debug("task does not apply to this host", "task", item.ID)
			continue
		}
		if item.Type() == config.KindPackage {
			if pmOS := platform.PackageManagerOS(packageManager(item, env)); pmOS != "" && env.OS != "" && pmOS != env.OS {
				log.Debug("package manager not available on this OS", "task", item.ID, "os", env.OS)
				continue
			}
		}

		rendered, err := template.RenderTask(item, env.Vars)
		if err != nil {
			return nil, err
		}
		if err := rendered.Validate(); err != nil {
			return nil, fmt.Errorf("task %q: %w", item.ID, err)
		}

		a, err := newAction(rendered, p, env, log.With("task", item.ID))
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", item.ID, err)
		}
		check := actions.Guard(a)
		if rendered.SkipIf != "" {
			check = guard.Any{guard.Shell{Runner: env.Runner, Expr: rendered.SkipIf}, check}
		}
		out = append(out, task.Task{
			ID:          rendered.ID,
			Description: rendered.Description,
			Check:       check,
			Action:      a,
			Criticality: rendered.Criticality(),
		})
	}
	if err := task.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func packageManager(t config.Task, env Env) string {
	if t.Via != "" {
		return t.Via
	}
	return env.PackageManager
}

func newAction(t config.Task, p *config.Profile, env Env, log *slog.Logger) (actions.Action, error) {
	mode, err := parseMode(t.Mode)
	if err != nil {
		return nil, err
	}

	switch t.Type() {
	case config.KindPackage:
		manager := packageManager(t, env)
		if manager == "" {
			return nil, fmt.Errorf("no package manager detected; set package_manager in the profile or via on the task")
		}
		return &actions.PackageAction{Runner: env.Runner, Manager: manager, Packages: t.PackageList(), Retries: t.Retries}, nil

	case config.KindFile:
		var tmpl string
		if t.Template != "" {
			tmpl = resolve(p, t.Template)
		}
		return &actions.FileAction{
			Path:      platform.ExpandPath(t.File),
			Format:    t.EffectiveFormat(),
			Content:   t.Content,
			Template:  tmpl,
			Encrypted: t.Encrypted,
			Key:       env.Key,
			Vars:      env.Vars,
			Settings:  t.Settings,
			Separator: t.Separator,
			Lines:     t.Lines,
			Mode:      mode,
			Owner:     t.Owner,
			Backups:   env.Backups,
			Logger:    log,
		}, nil

	case config.KindService:
		return &actions.ServiceAction{
			Runner:    env.Runner,
			Manager:   env.ServiceManager,
			Name:      t.Service,
			Enable:    t.ServiceEnabled(),
			RestartOn: t.RestartOn,
			Changes:   env.Changes,
		}, nil

	case config.KindUser:
		return &actions.UserAction{Runner: env.Runner, OS: env.OS, Name: t.User, Shell: t.Shell, Groups: t.Groups}, nil

	case config.KindRun:
		return &actions.RunAction{Runner: env.Runner, Command: t.Run, Retries: t.Retries}, nil

	case config.KindScript:
		a := &actions.ScriptAction{Runner: env.Runner, Fetcher: env.Fetcher, Source: t.Script, Via: t.Via, Checksum: t.Checksum, Retries: t.Retries}
		if a.Via != "remote" && !isURL(t.Script) {
			a.Source = resolve(p, t.Script)
		}
		return a, nil

	case config.KindRepo:
		return &actions.RepoAction{Runner: env.Runner, URL: t.Repo, Dest: platform.ExpandPath(t.Dest), Branch: t.Branch, Owner: t.Owner}, nil

	case config.KindSysctl:
		return &actions.SysctlAction{Runner: env.Runner, OS: env.OS, Key: t.Sysctl, Value: t.Value}, nil

	case config.KindArchive:
		return &actions.ArchiveAction{
			Fetcher:  env.Fetcher,
			URL:      t.Archive,
			Checksum: t.Checksum,
			Dest:     platform.ExpandPath(t.Dest),
			Strip:    t.Strip,
			Mode:     mode,
			Owner:    t.Owner,
		}, nil

	case config.KindDirectory:
		return &actions.DirectoryAction{Path: platform.ExpandPath(t.Directory), Mode: mode, Owner: t.Owner}, nil
	}
	return nil, fmt.Errorf("unknown task kind %q", t.Type())
}

func parseMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	return config.ParseMode(s)
}

// resolve makes a relative source path relative to the profile's directory.
func resolve(p *config.Profile, path string) string {
	path = platform.ExpandPath(path)
	if filepath.IsAbs(path) || p.Source == "" || p.Source == config.EmbeddedSource {
		return path
	}
	return filepath.Join(filepath.Dir(p.Source), path)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// NeedsNetwork reports whether any of tasks installs packages or downloads
// something, so the run should not start without connectivity.
func NeedsNetwork(tasks []task.Task) bool {
	for _, t := range tasks {
		switch a := t.Action.(type) {
		case *actions.PackageAction, *actions.RepoAction, *actions.ArchiveAction:
			return true
		case *actions.ScriptAction:
			if a.Remote() {
				return true
			}
		}
	}
	return false
}
