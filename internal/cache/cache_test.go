package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const testURL = "https://example.com/releases/latest/download/ruby-3.4.5.x86_64_linux.tar.gz"

func newTestCache(t *testing.T) (*Cache, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c, err := New(Options{Root: t.TempDir(), Out: &out})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, &out
}

// writeFetch returns a FetchFunc writing data and counting its calls.
func writeFetch(data string, calls *int) FetchFunc {
	return func(ctx context.Context, url, dst string) error {
		*calls++
		return os.WriteFile(dst, []byte(data), 0644)
	}
}

func TestDigest(t *testing.T) {
	d := Digest(testURL)
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(d) {
		t.Errorf("Digest = %q, want 16 lowercase hex digits", d)
	}
	if Digest(testURL) != d {
		t.Error("Digest is not deterministic")
	}
	if Digest(testURL+"x") == d {
		t.Error("different URLs should produce different digests")
	}
}

func TestPath(t *testing.T) {
	c, _ := newTestCache(t)

	got := c.Path(testURL)
	want := filepath.Join(c.Dir(), Digest(testURL)+".tar.gz")
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
	if !strings.Contains(got, filepath.Join("ruby-v0", "tarballs")) {
		t.Errorf("Path %q is not under ruby-v0/tarballs", got)
	}
}

func TestGetOrFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("miss fetches and publishes", func(t *testing.T) {
		c, out := newTestCache(t)
		calls := 0

		path, err := c.GetOrFetch(ctx, testURL, writeFetch("tarball", &calls))
		if err != nil {
			t.Fatalf("GetOrFetch failed: %v", err)
		}
		if path != c.Path(testURL) {
			t.Errorf("path = %q, want %q", path, c.Path(testURL))
		}
		data, err := os.ReadFile(path)
		if err != nil || string(data) != "tarball" {
			t.Errorf("cached content = %q, %v", data, err)
		}
		if calls != 1 {
			t.Errorf("fetch calls = %d, want 1", calls)
		}
		if out.Len() != 0 {
			t.Errorf("unexpected notice on miss: %q", out.String())
		}
		assertNoTransient(t, c)
	})

	t.Run("hit skips fetch", func(t *testing.T) {
		c, out := newTestCache(t)
		calls := 0

		if _, err := c.GetOrFetch(ctx, testURL, writeFetch("tarball", &calls)); err != nil {
			t.Fatal(err)
		}
		path, err := c.GetOrFetch(ctx, testURL, writeFetch("other", &calls))
		if err != nil {
			t.Fatalf("second GetOrFetch failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("fetch calls = %d, want 1", calls)
		}
		if !strings.Contains(out.String(), "already exists, skipping download") {
			t.Errorf("missing skip notice, got %q", out.String())
		}
		data, _ := os.ReadFile(path)
		if string(data) != "tarball" {
			t.Errorf("cached content replaced: %q", data)
		}
	})

	t.Run("failed fetch leaves nothing", func(t *testing.T) {
		c, _ := newTestCache(t)
		boom := errors.New("boom")

		_, err := c.GetOrFetch(ctx, testURL, func(ctx context.Context, url, dst string) error {
			os.WriteFile(dst, []byte("partial"), 0644)
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped fetch error, got %v", err)
		}
		var cerr *Error
		if !errors.As(err, &cerr) || cerr.Op != "fetch" {
			t.Errorf("expected *Error with Op fetch, got %#v", err)
		}
		if _, err := os.Stat(c.Path(testURL)); !os.IsNotExist(err) {
			t.Error("final file should not exist")
		}
		assertNoTransient(t, c)
	})

	t.Run("empty download is rejected", func(t *testing.T) {
		c, _ := newTestCache(t)
		calls := 0

		_, err := c.GetOrFetch(ctx, testURL, writeFetch("", &calls))
		if !errors.Is(err, ErrEmptyDownload) {
			t.Fatalf("expected ErrEmptyDownload, got %v", err)
		}
		if _, err := os.Stat(c.Path(testURL)); !os.IsNotExist(err) {
			t.Error("zero-byte final file should not exist")
		}
		assertNoTransient(t, c)
	})

	t.Run("leftover temp file is overwritten", func(t *testing.T) {
		c, _ := newTestCache(t)
		if err := os.MkdirAll(c.Dir(), 0755); err != nil {
			t.Fatal(err)
		}
		tmp := c.Path(testURL) + ".tmp"
		if err := os.WriteFile(tmp, []byte("garbage from a crash"), 0644); err != nil {
			t.Fatal(err)
		}

		calls := 0
		path, err := c.GetOrFetch(ctx, testURL, writeFetch("fresh", &calls))
		if err != nil {
			t.Fatalf("GetOrFetch failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("temp file must not count as a hit, fetch calls = %d", calls)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "fresh" {
			t.Errorf("content = %q, want fresh", data)
		}
		assertNoTransient(t, c)
	})

	t.Run("held lock fails fast", func(t *testing.T) {
		c, _ := newTestCache(t)
		if err := os.MkdirAll(c.Dir(), 0755); err != nil {
			t.Fatal(err)
		}
		lk, err := acquireLock(filepath.Join(c.Dir(), Digest(testURL)+".lock"))
		if err != nil {
			t.Fatal(err)
		}
		defer lk.Release()

		calls := 0
		_, err = c.GetOrFetch(ctx, testURL, writeFetch("tarball", &calls))
		if !errors.Is(err, ErrLocked) {
			t.Errorf("expected ErrLocked, got %v", err)
		}
		if calls != 0 {
			t.Errorf("fetch should not run while locked, calls = %d", calls)
		}
	})

	t.Run("unwritable root", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0644); err != nil {
			t.Fatal(err)
		}
		c, err := New(Options{Root: file})
		if err != nil {
			t.Fatal(err)
		}

		calls := 0
		_, err = c.GetOrFetch(ctx, testURL, writeFetch("tarball", &calls))
		var cerr *Error
		if !errors.As(err, &cerr) || cerr.Op != "create" {
			t.Errorf("expected *Error with Op create, got %v", err)
		}
	})
}

func TestDisabledCache(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	c, err := New(Options{Disabled: true, Out: &out})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !c.Ephemeral() {
		t.Error("disabled cache should be ephemeral")
	}

	calls := 0
	path, err := c.GetOrFetch(ctx, testURL, writeFetch("tarball", &calls))
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("tarball should exist until Close: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("ephemeral cache should be removed on Close")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close should not error: %v", err)
	}

	// A fresh disabled cache never reports a hit
	c2, err := New(Options{Disabled: true, Out: &out})
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if _, err := c2.GetOrFetch(ctx, testURL, writeFetch("tarball", &calls)); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected skip notice: %q", out.String())
	}
}

func TestNew_EmptyRoot(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestClean(t *testing.T) {
	c, _ := newTestCache(t)

	if n, err := c.Clean(); err != nil || n != 0 {
		t.Fatalf("Clean on missing dir = %d, %v", n, err)
	}

	if err := os.MkdirAll(c.Dir(), 0755); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-StaleThreshold - time.Minute)
	files := map[string]bool{
		"aaaa.tar.gz.tmp": true,
		"aaaa.lock":       true,
		"bbbb.tar.gz.tmp": false,
		"cccc.tar.gz":     false,
	}
	for name, old := range files {
		path := filepath.Join(c.Dir(), name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if old || name == "cccc.tar.gz" {
			if err := os.Chtimes(path, stale, stale); err != nil {
				t.Fatal(err)
			}
		}
	}

	n, err := c.Clean()
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	for name, old := range files {
		_, err := os.Stat(filepath.Join(c.Dir(), name))
		if old && !os.IsNotExist(err) {
			t.Errorf("%s should be removed", name)
		}
		if !old && err != nil {
			t.Errorf("%s should remain: %v", name, err)
		}
	}
}

func TestClean_Locks(t *testing.T) {
	c, _ := newTestCache(t)
	if err := os.MkdirAll(c.Dir(), 0755); err != nil {
		t.Fatal(err)
	}
	locks := map[string]string{
		"live.lock": fmt.Sprintf("pid=%d\n", os.Getpid()),
		"dead.lock": "pid=99999999\n",
	}
	for name, content := range locks {
		if err := os.WriteFile(filepath.Join(c.Dir(), name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.Clean()
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(c.Dir(), "dead.lock")); !os.IsNotExist(err) {
		t.Error("lock of an exited process should be removed")
	}
	if _, err := os.Stat(filepath.Join(c.Dir(), "live.lock")); err != nil {
		t.Errorf("lock of a running process should remain: %v", err)
	}
}

func assertNoTransient(t *testing.T, c *Cache) {
	t.Helper()
	entries, err := os.ReadDir(c.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") || strings.HasSuffix(e.Name(), ".lock") {
			t.Errorf("transient file left behind: %s", e.Name())
		}
	}
}
