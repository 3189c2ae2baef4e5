// Package backup keeps a timestamped copy of every file hostprep is about to
// replace, and replaces files atomically so a crash never leaves a partial
// config on disk.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StampLayout is the timestamp suffix format of backup files.
const StampLayout = "20060102150405"

// Store creates backups. The zero value writes backups next to the original.
type Store struct {
	// Dir collects all backups in one directory instead. The original path is
	// flattened into the file name.
	Dir string
	// Now overrides time.Now.
	Now func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Path returns where a backup of path taken at t would be written.
func (s Store) Path(path string, t time.Time) string {
	suffix := ".bak." + t.Format(StampLayout)
	if s.Dir == "" {
		return path + suffix
	}
	flat := strings.ReplaceAll(strings.TrimPrefix(filepath.Clean(path), string(filepath.Separator)), string(filepath.Separator), "_")
	return filepath.Join(s.Dir, flat+suffix)
}

// Save copies path to a new backup and returns the backup's path. It returns
// "" and no error when path does not exist.
func (s Store) Save(path string) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("backup %s: is a directory", path)
	}
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0o700); err != nil {
			return "", fmt.Errorf("create backup dir: %w", err)
		}
	}

	dest := s.Path(path, s.now())
	// Two backups within the same second get a counter.
	for n := 1; exists(dest); n++ {
		dest = s.Path(path, s.now()) + "." + strconv.Itoa(n)
	}
	if err := copyFile(path, dest, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	return dest, nil
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	return WriteFrom(path, bytes.NewReader(data), perm)
}

// WriteFrom atomically replaces path with the contents of r. The data is
// written to a temporary file in the same directory, synced, and renamed over
// path.
func WriteFrom(path string, r io.Reader, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
