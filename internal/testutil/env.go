// Package testutil provides utilities for testing rv in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated directories created by SetupTestEnv.
type Env struct {
	Root       string
	ConfigDir  string
	CacheDir   string
	InstallDir string
}

// rvEnvVars are cleared so a developer's own settings never leak into tests.
var rvEnvVars = []string{
	"RV_CACHE_DIR",
	"RV_NO_CACHE",
	"RV_RELEASES_URL",
	"RV_INSTALL_DIR",
	"RV_RUBY_DIRS",
	"RV_CONFIG_FILE",
	"RV_LOG_LEVEL",
}

// SetupTestEnv creates isolated test directories for each test.
// This ensures rv tests never touch the user's rubies, cache or config.
//
// Cleanup is handled by t.TempDir() and t.Setenv().
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := &Env{
		Root:       tmpDir,
		ConfigDir:  filepath.Join(tmpDir, "config"),
		CacheDir:   filepath.Join(tmpDir, "cache"),
		InstallDir: filepath.Join(tmpDir, "rubies"),
	}

	for _, key := range rvEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Setenv("HOME", filepath.Join(tmpDir, "home"))
	t.Setenv("XDG_CONFIG_HOME", env.ConfigDir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmpDir, "xdg-cache"))
	t.Setenv("RV_CACHE_DIR", env.CacheDir)
	t.Setenv("RV_INSTALL_DIR", env.InstallDir)

	for _, dir := range []string{env.ConfigDir, filepath.Join(tmpDir, "home")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}
