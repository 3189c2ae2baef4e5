package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dunamismax/hostprep/internal/ageutil"
	"github.com/dunamismax/hostprep/internal/backup"
	"github.com/dunamismax/hostprep/internal/config"
	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/template"
)

// FileAction writes a config file.
//
// Formats:
//   - raw: the file becomes Content, or the rendered Template file. An
//     Encrypted template is read from "<Template>.age" and decrypted with Key
//     before rendering.
//   - keyvalue: Settings are merged into the existing file ("Key Value" lines,
//     or "Key<Separator>Value").
//   - lines: each of Lines is appended unless already present.
//
// An existing file is backed up before it is replaced, and the replacement
// is atomic. Mode and Owner, when set, are enforced after every write.
type FileAction struct {
	Path      string
	Format    string
	Content   string
	Template  string
	Encrypted bool
	Key       *ageutil.Key
	Vars      map[string]any
	Settings  config.Settings
	Separator string
	Lines     []string
	Mode      fs.FileMode
	Owner     string
	Backups   backup.Store
	Logger    *slog.Logger
}

func (a *FileAction) format() string {
	if a.Format == "" {
		return config.FormatRaw
	}
	return a.Format
}

func (a *FileAction) Describe() string {
	enc := ""
	if a.Encrypted {
		enc = " [encrypted]"
	}
	return fmt.Sprintf("write %s (%s)%s", a.Path, a.format(), enc)
}

// Desired returns the content the file should have.
func (a *FileAction) Desired() ([]byte, error) {
	switch a.format() {
	case config.FormatRaw:
		if a.Template == "" {
			return []byte(a.Content), nil
		}
		src, err := a.readTemplate()
		if err != nil {
			return nil, err
		}
		out, err := template.Render(string(src), a.Vars)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", a.Template, err)
		}
		return []byte(out), nil
	case config.FormatKeyValue:
		existing, err := a.existing()
		if err != nil {
			return nil, err
		}
		return []byte(template.MergeSettings(existing, a.Settings, a.Separator)), nil
	case config.FormatLines:
		existing, err := a.existing()
		if err != nil {
			return nil, err
		}
		return []byte(template.EnsureLines(existing, a.Lines)), nil
	default:
		return nil, fmt.Errorf("unknown file format %q", a.Format)
	}
}

func (a *FileAction) readTemplate() ([]byte, error) {
	if a.Encrypted {
		return a.Key.DecryptFile(ageutil.SourcePath(a.Template))
	}
	return os.ReadFile(a.Template)
}

func (a *FileAction) existing() (string, error) {
	data, err := os.ReadFile(a.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *FileAction) Check(ctx context.Context) guard.Result {
	want, err := a.Desired()
	if err != nil {
		return guard.Fail(err)
	}
	r := guard.FileMatches{Path: a.Path, Content: want, Mode: a.Mode}.Check(ctx)
	return checkOwner(r, a.Path, a.Owner)
}

func (a *FileAction) Run(ctx context.Context) error {
	want, err := a.Desired()
	if err != nil {
		return err
	}

	perm := a.Mode
	if info, err := os.Stat(a.Path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", a.Path)
		}
		if perm == 0 {
			perm = info.Mode().Perm()
		}
	}
	if perm == 0 {
		perm = 0o644
	}

	saved, err := a.Backups.Save(a.Path)
	if err != nil {
		return err
	}
	if saved != "" {
		orDiscard(a.Logger).Info("backed up "+a.Path, "backup", saved)
	}
	if err := backup.WriteFile(a.Path, want, perm); err != nil {
		return err
	}
	return chown(a.Path, a.Owner)
}
