package actions

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/dunamismax/hostprep/internal/guard"
)

// DirectoryAction ensures a directory exists with the given mode and owner.
type DirectoryAction struct {
	Path  string
	Mode  fs.FileMode // 0 means 0755 on creation and no mode enforcement
	Owner string
}

func (a *DirectoryAction) Describe() string {
	if a.Mode != 0 {
		return fmt.Sprintf("create directory %s (%04o)", a.Path, a.Mode)
	}
	return fmt.Sprintf("create directory %s", a.Path)
}

func (a *DirectoryAction) Check(ctx context.Context) guard.Result {
	r := guard.Directory{Path: a.Path, Mode: a.Mode}.Check(ctx)
	return checkOwner(r, a.Path, a.Owner)
}

func (a *DirectoryAction) Run(ctx context.Context) error {
	mode := a.Mode
	if mode == 0 {
		mode = 0o755
	}
	if err := os.MkdirAll(a.Path, mode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if a.Mode != 0 {
		// MkdirAll is subject to the umask and leaves existing dirs alone.
		if err := os.Chmod(a.Path, a.Mode); err != nil {
			return fmt.Errorf("chmod %s: %w", a.Path, err)
		}
	}
	return chown(a.Path, a.Owner)
}
