// Package fetch downloads remote scripts and archives. Downloads may be pinned
// to a SHA-256 checksum; pinned content is cached on disk and served from the
// cache on later runs.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UserAgent is sent with every request.
const UserAgent = "hostprep/1"

// ErrChecksum is returned when downloaded content does not match its pin.
var ErrChecksum = errors.New("checksum mismatch")

// Client fetches URLs.
type Client struct {
	HTTP *http.Client
	// CacheDir holds pinned downloads keyed by checksum. Empty disables the cache.
	CacheDir string
	Logger   *slog.Logger
}

// New returns a Client with a five minute request timeout.
func New(cacheDir string, logger *slog.Logger) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 5 * time.Minute},
		CacheDir: cacheDir,
		Logger:   logger,
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// Fetch returns the body of url. When sum is non-empty the body must hash to
// it, and a cached copy with that hash is returned without touching the
// network.
func (c *Client) Fetch(ctx context.Context, url, sum string) ([]byte, error) {
	sum = normalize(sum)
	if sum != "" && c.CacheDir != "" {
		if data, err := os.ReadFile(c.cachePath(sum)); err == nil {
			if Verify(data, sum) == nil {
				c.logger().Debug("using cached download", "url", url)
				return data, nil
			}
			c.logger().Warn("cached download is corrupt; fetching again", "url", url)
		}
	}

	data, err := c.download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if sum == "" {
		return data, nil
	}
	if err := Verify(data, sum); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if c.CacheDir != "" {
		if err := writeCacheFile(c.cachePath(sum), data); err != nil {
			c.logger().Warn("could not cache download", "url", url, "error", err)
		}
	}
	return data, nil
}

// Verify checks data against a hex SHA-256 sum, optionally "sha256:"-prefixed.
func Verify(data []byte, sum string) error {
	want := normalize(sum)
	got := Sum(data)
	if got != want {
		return fmt.Errorf("%w (expected %s, got %s)", ErrChecksum, want, got)
	}
	return nil
}

// Sum returns the hex SHA-256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ReachTimeout bounds a Reachable request.
const ReachTimeout = 10 * time.Second

// Reachable sends a HEAD request to url and reports an error when no HTTP
// response arrives within ReachTimeout. Any status code counts as reachable.
func (c *Client) Reachable(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, ReachTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reach %s: %w", url, err)
	}
	resp.Body.Close()
	return nil
}

func normalize(sum string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(sum), "sha256:"))
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func (c *Client) cachePath(sum string) string {
	return filepath.Join(c.CacheDir, "sha256-"+sum)
}

func writeCacheFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
