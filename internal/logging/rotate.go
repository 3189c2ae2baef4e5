package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// rotate compresses path to path.<YYYYMMDDHHMMSS>.gz and truncates it when
// it is larger than maxSize. It returns the archive path, or "" when no
// rotation was needed.
func rotate(path string, maxSize int64, now time.Time) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= maxSize {
		return "", nil
	}
	archive := fmt.Sprintf("%s.%s.gz", path, now.Format("20060102150405"))
	if err := compressFile(path, archive); err != nil {
		os.Remove(archive)
		return "", fmt.Errorf("compress %s: %w", path, err)
	}
	if err := os.Truncate(path, 0); err != nil {
		return archive, fmt.Errorf("truncate %s: %w", path, err)
	}
	return archive, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}
