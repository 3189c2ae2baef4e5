package backup

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// SnapshotName returns the file name of a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return "config_snapshot_" + t.Format(StampLayout) + ".tar.gz"
}

// Snapshot archives paths into dir/SnapshotName(now) and returns the archive
// path along with the files it holds. Missing paths are skipped; a directory
// contributes its top-level regular files as dir/name. When nothing exists
// no archive is written and path is "".
func Snapshot(dir string, paths []string, now time.Time) (path string, included []string, err error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, p := range paths {
		files, err := snapshotFiles(p)
		if err != nil {
			return "", nil, err
		}
		for _, f := range files {
			if err := addFile(tw, f); err != nil {
				return "", nil, fmt.Errorf("snapshot %s: %w", f, err)
			}
			included = append(included, f)
		}
	}
	if err := tw.Close(); err != nil {
		return "", nil, err
	}
	if err := gz.Close(); err != nil {
		return "", nil, err
	}
	if len(included) == 0 {
		return "", nil, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	path = filepath.Join(dir, SnapshotName(now))
	if err := WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", nil, err
	}
	return path, included, nil
}

func snapshotFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files, nil
}

func addFile(tw *tar.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = strings.TrimPrefix(filepath.ToSlash(path), "/")
	hdr.Size = int64(len(data))
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}
