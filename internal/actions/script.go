package actions

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dunamismax/hostprep/internal/fetch"
	"github.com/dunamismax/hostprep/internal/shell"
)

// ScriptAction runs a shell script, either from a local path or a remote URL.
// Remote scripts may be pinned with a SHA-256 checksum.
type ScriptAction struct {
	Runner   shell.Runner
	Fetcher  *fetch.Client
	Source   string
	Via      string // "remote" or "local"; inferred from Source when empty
	Checksum string
	Retries  int
}

func (a *ScriptAction) via() string {
	if a.Via != "" {
		return a.Via
	}
	if strings.HasPrefix(a.Source, "https://") || strings.HasPrefix(a.Source, "http://") {
		return "remote"
	}
	return "local"
}

// Remote reports whether the script is downloaded.
func (a *ScriptAction) Remote() bool { return a.via() == "remote" }

func (a *ScriptAction) Describe() string {
	return fmt.Sprintf("run script %q (via %s)", a.Source, a.via())
}

func (a *ScriptAction) Run(ctx context.Context) error {
	switch a.via() {
	case "remote":
		return a.runRemote(ctx)
	case "local":
		if a.Checksum != "" {
			data, err := os.ReadFile(a.Source)
			if err != nil {
				return err
			}
			if err := fetch.Verify(data, a.Checksum); err != nil {
				return fmt.Errorf("%s: %w", a.Source, err)
			}
		}
		return a.exec(ctx, a.Source)
	default:
		return fmt.Errorf("unknown script source %q; expected \"remote\" or \"local\"", a.Via)
	}
}

func (a *ScriptAction) runRemote(ctx context.Context) error {
	if a.Fetcher == nil {
		return fmt.Errorf("remote script %s: no downloader configured", a.Source)
	}
	script, err := a.Fetcher.Fetch(ctx, a.Source, a.Checksum)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "hostprep-*.sh")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(script); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o700); err != nil {
		return err
	}
	return a.exec(ctx, tmp.Name())
}

func (a *ScriptAction) exec(ctx context.Context, path string) error {
	c := shell.Command{Name: "sh", Args: []string{path}, Mode: shell.StreamToLog, Retries: a.Retries}
	return run(ctx, a.Runner, c)
}
