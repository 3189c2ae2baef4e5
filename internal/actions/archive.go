package actions

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/dunamismax/hostprep/internal/backup"
	"github.com/dunamismax/hostprep/internal/fetch"
	"github.com/dunamismax/hostprep/internal/guard"
)

// ArchiveAction downloads a tar.gz or zip archive and unpacks it into Dest,
// or installs a plain binary at Dest when the URL is neither. Strip drops
// that many leading path components from archive entries.
//
// Archives are unpacked into a staging directory next to Dest and renamed
// into place, so a failed extraction leaves no partial Dest behind.
type ArchiveAction struct {
	Fetcher  *fetch.Client
	URL      string
	Checksum string
	Dest     string
	Strip    int
	Mode     fs.FileMode // plain binaries only; default 0755
	Owner    string
}

func (a *ArchiveAction) Describe() string {
	return fmt.Sprintf("install %s -> %s", a.URL, a.Dest)
}

func (a *ArchiveAction) Check(ctx context.Context) guard.Result {
	return guard.PathExists{Path: a.Dest}.Check(ctx)
}

func (a *ArchiveAction) Run(ctx context.Context) error {
	if a.Fetcher == nil {
		return fmt.Errorf("archive %s: no downloader configured", a.URL)
	}
	data, err := a.Fetcher.Fetch(ctx, a.URL, a.Checksum)
	if err != nil {
		return err
	}

	lower := strings.ToLower(a.URL)
	var extract func(data []byte, dir string) error
	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		extract = a.extractTarGz
	case strings.HasSuffix(lower, ".zip"):
		extract = a.extractZip
	default:
		mode := a.Mode
		if mode == 0 {
			mode = 0o755
		}
		if err := backup.WriteFile(a.Dest, data, mode); err != nil {
			return fmt.Errorf("install binary: %w", err)
		}
		return chown(a.Dest, a.Owner)
	}

	parent := filepath.Dir(a.Dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, ".hostprep-archive-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extract(data, staging); err != nil {
		return fmt.Errorf("extract %s: %w", a.URL, err)
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		return err
	}
	if err := os.Rename(staging, a.Dest); err != nil {
		return fmt.Errorf("move into place: %w", err)
	}
	if a.Owner != "" {
		return filepath.WalkDir(a.Dest, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			return chown(path, a.Owner)
		})
	}
	return nil
}

// entryPath maps an archive entry name to a path under dir, applying Strip.
// ok is false for entries that are stripped away entirely.
func (a *ArchiveAction) entryPath(dir, name string) (path string, ok bool, err error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if len(parts) <= a.Strip {
		return "", false, nil
	}
	rel := filepath.Join(parts[a.Strip:]...)
	if rel == "" || rel == "." {
		return "", false, nil
	}
	if !filepath.IsLocal(rel) {
		return "", false, fmt.Errorf("entry %q escapes the destination", name)
	}
	return filepath.Join(dir, rel), true, nil
}

func (a *ArchiveAction) extractTarGz(data []byte, dir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		target, ok, err := a.entryPath(dir, hdr.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			rel, _ := filepath.Rel(dir, target)
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(filepath.Join(filepath.Dir(rel), hdr.Linkname)) {
				return fmt.Errorf("symlink %q -> %q escapes the destination", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func (a *ArchiveAction) extractZip(data []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		target, ok, err := a.entryPath(dir, f.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(path string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
