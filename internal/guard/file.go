package guard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/zeebo/blake3"
)

// Digest returns the BLAKE3-256 digest of data.
func Digest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// FileDigest streams the file at path through BLAKE3-256.
func FileDigest(path string) ([32]byte, error) {
	var digest [32]byte
	f, err := os.Open(path)
	if err != nil {
		return digest, err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return digest, fmt.Errorf("hashing %s: %w", path, err)
	}
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// FileContains is satisfied when the file contains Marker.
type FileContains struct {
	Path   string
	Marker string
}

func (f FileContains) Check(context.Context) Result {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Need("%s does not exist", f.Path)
	}
	if err != nil {
		return Fail(err)
	}
	if bytes.Contains(data, []byte(f.Marker)) {
		return Satisfy("%s already contains %q", f.Path, f.Marker)
	}
	return Need("%s lacks %q", f.Path, f.Marker)
}

// FileMatches is satisfied when the file's content hashes to the same digest
// as Content and, when Mode is non-zero, its permission bits equal Mode.
type FileMatches struct {
	Path    string
	Content []byte
	Mode    fs.FileMode
}

func (f FileMatches) Check(context.Context) Result {
	info, err := os.Stat(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Need("%s does not exist", f.Path)
	}
	if err != nil {
		return Fail(err)
	}
	if info.IsDir() {
		return Fail(fmt.Errorf("%s is a directory", f.Path))
	}
	got, err := FileDigest(f.Path)
	if err != nil {
		return Fail(err)
	}
	if got != Digest(f.Content) {
		return Need("%s content differs", f.Path)
	}
	if f.Mode != 0 && info.Mode().Perm() != f.Mode.Perm() {
		return Need("%s mode is %04o, want %04o", f.Path, info.Mode().Perm(), f.Mode.Perm())
	}
	return Satisfy("%s up to date", f.Path)
}

// PathExists is satisfied when Path exists (file, directory or symlink).
type PathExists struct {
	Path string
}

func (p PathExists) Check(context.Context) Result {
	_, err := os.Lstat(p.Path)
	if err == nil {
		return Satisfy("%s exists", p.Path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Need("%s does not exist", p.Path)
	}
	return Fail(err)
}

// Directory is satisfied when Path is a directory with mode Mode (if set).
type Directory struct {
	Path string
	Mode fs.FileMode
}

func (d Directory) Check(context.Context) Result {
	info, err := os.Stat(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Need("%s does not exist", d.Path)
	}
	if err != nil {
		return Fail(err)
	}
	if !info.IsDir() {
		return Fail(fmt.Errorf("%s exists and is not a directory", d.Path))
	}
	if d.Mode != 0 && info.Mode().Perm() != d.Mode.Perm() {
		return Need("%s mode is %04o, want %04o", d.Path, info.Mode().Perm(), d.Mode.Perm())
	}
	return Satisfy("%s exists", d.Path)
}
