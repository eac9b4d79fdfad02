package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/savechina/rv/internal/install"
	"github.com/savechina/rv/internal/ruby"
)

// mockInstaller implements Installer for testing.
type mockInstaller struct {
	got install.Options
	err error
}

func (m *mockInstaller) Install(ctx context.Context, opts install.Options) (ruby.Ruby, error) {
	m.got = opts
	if m.err != nil {
		return ruby.Ruby{}, m.err
	}
	v, _ := opts.Request.Version()
	return ruby.Ruby{Version: v, Tag: testTag, Path: filepath.Join(opts.InstallDir, v.String())}, nil
}

// mockUninstaller implements Uninstaller for testing.
type mockUninstaller struct {
	got ruby.Request
}

func (m *mockUninstaller) Uninstall(ctx context.Context, req ruby.Request) (ruby.Ruby, error) {
	m.got = req
	return ruby.Ruby{}, nil
}

func TestRubyInstallService_Install(t *testing.T) {
	m := &mockInstaller{}
	svc := NewRubyInstallService(m)

	result, err := svc.Install(context.Background(), InstallRequest{Version: "3.4.5", InstallDir: "/opt/rubies", TarballPath: "/tmp/r.tar.gz"})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if m.got.Request.String() != "3.4.5" || m.got.InstallDir != "/opt/rubies" || m.got.TarballPath != "/tmp/r.tar.gz" {
		t.Errorf("installer got %+v", m.got)
	}
	if result.Ruby.Version.String() != "3.4.5" {
		t.Errorf("result = %+v", result)
	}
}

func TestRubyInstallService_Errors(t *testing.T) {
	m := &mockInstaller{err: errors.New("boom")}
	svc := NewRubyInstallService(m)

	if _, err := svc.Install(context.Background(), InstallRequest{Version: "x.y"}); !errors.Is(err, ruby.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.Install(context.Background(), InstallRequest{Version: "3.4.5"}); err == nil || err.Error() != "boom" {
		t.Errorf("installer error should pass through unchanged, got %v", err)
	}
}

func TestRubyUninstallService_Uninstall(t *testing.T) {
	m := &mockUninstaller{}
	svc := NewRubyUninstallService(m)

	if _, err := svc.Uninstall(context.Background(), "ruby-3.4.5"); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if m.got.String() != "3.4.5" {
		t.Errorf("uninstaller got %s", m.got)
	}
	if _, err := svc.Uninstall(context.Background(), ""); !errors.Is(err, ruby.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRubyRunService_Run(t *testing.T) {
	root := t.TempDir()
	dir := installFake(t, root, "3.4.5", testTag)

	var gotArgv0 string
	var gotArgv, gotEnv []string
	fakeExec := func(argv0 string, argv []string, envv []string) error {
		gotArgv0, gotArgv, gotEnv = argv0, argv, envv
		return nil
	}

	svc := NewRubyRunService(NewRubyFindService([]string{root}, testTag), fakeExec)
	svc.environ = func() []string { return []string{"PATH=/usr/bin", "HOME=/home/me", "RUBY_ROOT=/old"} }

	err := svc.Run(context.Background(), RunRequest{Version: "3.4", Args: []string{"-e", "puts 1"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantExe := filepath.Join(dir, "bin", "ruby")
	if gotArgv0 != wantExe {
		t.Errorf("argv0 = %s, want %s", gotArgv0, wantExe)
	}
	if strings.Join(gotArgv, " ") != wantExe+" -e puts 1" {
		t.Errorf("argv = %v", gotArgv)
	}

	env := strings.Join(gotEnv, "\n")
	for _, want := range []string{
		"PATH=" + filepath.Join(dir, "bin") + ":/usr/bin",
		"RUBY_ROOT=" + dir,
		"RUBY_VERSION=3.4.5",
		"HOME=/home/me",
	} {
		if !strings.Contains(env, want) {
			t.Errorf("env missing %q:\n%s", want, env)
		}
	}
	if strings.Contains(env, "RUBY_ROOT=/old") {
		t.Error("stale RUBY_ROOT should be replaced")
	}
}

func TestRubyRunService_Errors(t *testing.T) {
	root := t.TempDir()
	installFake(t, root, "3.4.5", testTag)

	execErr := errors.New("exec failed")
	svc := NewRubyRunService(NewRubyFindService([]string{root}, testTag), func(string, []string, []string) error {
		return execErr
	})

	if err := svc.Run(context.Background(), RunRequest{Version: "3.4.5"}); !errors.Is(err, execErr) {
		t.Errorf("expected exec error, got %v", err)
	}
	if err := svc.Run(context.Background(), RunRequest{Version: "2.7"}); !errors.Is(err, ruby.ErrNoMatchingRuby) {
		t.Errorf("expected ErrNoMatchingRuby, got %v", err)
	}
}
