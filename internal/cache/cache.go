// Package cache stores downloaded Ruby archives on disk, keyed by a digest
// of their download URL.
//
// Layout:
//
//	<root>/ruby-v0/tarballs/<digest>.tar.gz       complete archive
//	<root>/ruby-v0/tarballs/<digest>.tar.gz.tmp   download in progress
//	<root>/ruby-v0/tarballs/<digest>.lock         advisory fetch lock
//
// A final file only ever appears through rename of its .tmp file, so a
// reader never sees a partial archive, even after a crash. A .tmp file
// without a final file is garbage from an interrupted run; it is never
// read and is overwritten by the next fetch of the same key.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/savechina/rv/internal/config"
)

const (
	// SchemaVersion prefixes the cache layout. Bump it for incompatible
	// layout changes; old layouts are simply ignored.
	SchemaVersion = "ruby-v0"

	tarballsBucket = "tarballs"
	tarballExt     = ".tar.gz"
	tmpSuffix      = ".tmp"
	lockExt        = ".lock"
)

// ErrEmptyDownload is returned when a fetch succeeds without writing any data.
var ErrEmptyDownload = errors.New("download is empty")

// FetchFunc writes the complete body of url to dst. It must return only
// after dst is fully written and closed.
type FetchFunc func(ctx context.Context, url, dst string) error

// Error records a failed cache filesystem operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options configures a Cache.
type Options struct {
	// Root is the cache root directory. Ignored when Disabled is set.
	Root string
	// Disabled makes the cache ephemeral: entries live in a temporary
	// directory that Close removes.
	Disabled bool
	// Out receives user-facing notices such as cache hits. Defaults to io.Discard.
	Out io.Writer
	// Logger receives debug logs.
	Logger config.Logger
}

// Cache is a content-addressed store for downloaded archives.
type Cache struct {
	root      string
	ephemeral string
	out       io.Writer
	logger    config.Logger
}

// New creates a Cache. Directories are created lazily on first fetch.
func New(opts Options) (*Cache, error) {
	c := &Cache{
		out:    opts.Out,
		logger: config.OrNop(opts.Logger),
	}
	if c.out == nil {
		c.out = io.Discard
	}

	base := opts.Root
	if opts.Disabled {
		dir, err := os.MkdirTemp("", "rv-cache-")
		if err != nil {
			return nil, &Error{Op: "create", Path: os.TempDir(), Err: err}
		}
		c.ephemeral = dir
		base = dir
	}
	if base == "" {
		return nil, &Error{Op: "open", Path: base, Err: errors.New("cache root is empty")}
	}

	c.root = filepath.Join(base, SchemaVersion)
	return c, nil
}

// Close removes the ephemeral directory of a disabled cache. It is a no-op
// for persistent caches.
func (c *Cache) Close() error {
	if c.ephemeral == "" {
		return nil
	}
	if err := os.RemoveAll(c.ephemeral); err != nil {
		return &Error{Op: "remove", Path: c.ephemeral, Err: err}
	}
	c.ephemeral = ""
	return nil
}

// Ephemeral reports whether the cache is discarded on Close.
func (c *Cache) Ephemeral() bool {
	return c.ephemeral != ""
}

// Digest returns the cache key for url: the lowercase hex xxhash64 of the
// URL string.
func Digest(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

// Dir returns the directory holding cached tarballs.
func (c *Cache) Dir() string {
	return filepath.Join(c.root, tarballsBucket)
}

// Path returns the final cache path for url, whether or not it exists.
func (c *Cache) Path(url string) string {
	return filepath.Join(c.Dir(), Digest(url)+tarballExt)
}

// GetOrFetch returns the cached archive for url, calling fetch to download
// it on a miss. On any fetch failure the temp file is removed and nothing is
// published.
func (c *Cache) GetOrFetch(ctx context.Context, url string, fetch FetchFunc) (string, error) {
	final := c.Path(url)
	if c.hit(final) {
		return final, nil
	}

	dir := c.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &Error{Op: "create", Path: dir, Err: err}
	}

	lockPath := filepath.Join(dir, Digest(url)+lockExt)
	lk, err := acquireLock(lockPath)
	if err != nil {
		return "", &Error{Op: "lock", Path: lockPath, Err: err}
	}
	defer func() {
		if err := lk.Release(); err != nil {
			c.logger.Warn("release cache lock", "path", lockPath, "error", err)
		}
	}()

	// Another process may have published while we waited for the lock
	if c.hit(final) {
		return final, nil
	}

	tmp := final + tmpSuffix
	c.logger.Debug("cache miss", "url", url, "tmp", tmp)

	if err := fetch(ctx, url, tmp); err != nil {
		c.removeTemp(tmp)
		return "", &Error{Op: "fetch", Path: tmp, Err: err}
	}

	info, err := os.Stat(tmp)
	if err != nil {
		c.removeTemp(tmp)
		return "", &Error{Op: "stat", Path: tmp, Err: err}
	}
	if info.Size() == 0 {
		c.removeTemp(tmp)
		return "", &Error{Op: "fetch", Path: tmp, Err: ErrEmptyDownload}
	}

	if err := os.Rename(tmp, final); err != nil {
		c.removeTemp(tmp)
		return "", &Error{Op: "rename", Path: final, Err: err}
	}

	c.logger.Debug("cached tarball", "url", url, "path", final, "bytes", info.Size())
	return final, nil
}

// Clean removes temp and lock files older than StaleThreshold and returns
// how many were removed.
func (c *Cache) Clean() (int, error) {
	dir := c.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &Error{Op: "read", Path: dir, Err: err}
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, tmpSuffix) || strings.HasSuffix(name, lockExt)) {
			continue
		}
		path := filepath.Join(dir, name)
		stale := isStale(path)
		if strings.HasSuffix(name, lockExt) {
			stale = isStaleLock(path)
		}
		if !stale {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, &Error{Op: "remove", Path: path, Err: err}
		}
		removed++
	}
	return removed, nil
}

// hit reports a usable final file and prints the skip notice.
func (c *Cache) hit(final string) bool {
	if !fileExists(final) {
		return false
	}
	fmt.Fprintf(c.out, "Tarball %s already exists, skipping download.\n", final)
	c.logger.Debug("cache hit", "path", final)
	return true
}

func (c *Cache) removeTemp(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("remove temp file", "path", tmp, "error", err)
	}
}

// fileExists checks if a file exists and is not empty
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}
