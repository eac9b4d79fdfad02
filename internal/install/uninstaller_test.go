package install

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/savechina/rv/internal/ruby"
	"github.com/savechina/rv/internal/testutil"
)

func TestUninstaller_Uninstall(t *testing.T) {
	f := newFixture(t)
	url := f.addRuby(t, "3.4.5")
	ctx := context.Background()

	installed, err := f.installer.Install(ctx, Options{Request: ruby.MustParseRequest("3.4.5")})
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	var out bytes.Buffer
	u := NewUninstaller([]string{f.installDir}, testTag, &out, nil)
	removed, err := u.Uninstall(ctx, ruby.MustParseRequest("3.4.5"))
	if err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if removed.Path != installed.Path {
		t.Errorf("removed %s, want %s", removed.Path, installed.Path)
	}
	if !strings.Contains(out.String(), "Deleting") || !strings.Contains(out.String(), installed.Path) {
		t.Errorf("output = %q", out.String())
	}
	if _, err := os.Stat(installed.Path); !os.IsNotExist(err) {
		t.Error("install tree should be removed")
	}
	if _, err := os.Stat(filepath.Dir(installed.Path)); !os.IsNotExist(err) {
		t.Error("empty version dir should be removed")
	}
	if _, err := os.Stat(f.cache.Path(url)); err != nil {
		t.Errorf("cache must be untouched: %v", err)
	}
}

func TestUninstaller_KeepsOtherTags(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "3.4.5", "x86_64_linux"), "bin/ruby", []byte("x"))
	testutil.WriteFile(t, filepath.Join(root, "3.4.5", "arm64_linux"), "bin/ruby", []byte("x"))

	u := NewUninstaller([]string{root}, testTag, nil, nil)
	if _, err := u.Uninstall(context.Background(), ruby.MustParseRequest("3.4.5")); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "3.4.5", "arm64_linux")); err != nil {
		t.Errorf("other platform tree should remain: %v", err)
	}
}

func TestUninstaller_NoMatch(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "3.3.0", "x86_64_linux"), "bin/ruby", []byte("x"))

	var out bytes.Buffer
	u := NewUninstaller([]string{root}, testTag, &out, nil)
	_, err := u.Uninstall(context.Background(), ruby.MustParseRequest("3.4.5"))
	if !errors.Is(err, ruby.ErrNoMatchingRuby) {
		t.Fatalf("expected ErrNoMatchingRuby, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("no output expected, got %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(root, "3.3.0", "x86_64_linux", "bin", "ruby")); err != nil {
		t.Errorf("filesystem must be unchanged: %v", err)
	}
}

func TestRemoveError(t *testing.T) {
	err := &RemoveError{Dir: "/rubies/3.4.5", Err: os.ErrPermission}
	if got := err.Error(); !strings.HasPrefix(got, "could not delete dir /rubies/3.4.5: ") {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("RemoveError should unwrap to its cause")
	}
}
