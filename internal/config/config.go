package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const (
	// AppName is used for default directory names.
	AppName = "rv"
	// EnvPrefix prefixes every environment variable rv reads.
	EnvPrefix = "RV"
	// DefaultReleasesURL is the upstream location of prebuilt rubies.
	DefaultReleasesURL = "https://github.com/spinel-coop/rv-ruby/releases"
	// DefaultLogLevel keeps the log stream quiet unless asked otherwise.
	DefaultLogLevel = "warn"
)

// Keys shared by the Lua file, viper and the environment.
const (
	KeyCacheDir    = "cache_dir"
	KeyNoCache     = "no_cache"
	KeyReleasesURL = "releases_url"
	KeyInstallDir  = "install_dir"
	KeyRubyDirs    = "ruby_dirs"
	KeyLogLevel    = "log_level"
)

// ErrInvalidConfig is wrapped by all validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the process-wide configuration, built once at startup.
type Config struct {
	// CacheDir is the cache root; archives live under <CacheDir>/ruby-v0.
	CacheDir string
	// NoCache disables persistent caching.
	NoCache bool
	// ReleasesURL is the base URL of the releases index.
	ReleasesURL string
	// InstallDir is the primary install root.
	InstallDir string
	// RubyDirs are additional directories searched for installed rubies.
	RubyDirs []string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// File is the config file that was loaded, empty if none.
	File string
}

// SearchDirs returns the install root followed by the extra ruby dirs,
// without duplicates.
func (c *Config) SearchDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, d := range append([]string{c.InstallDir}, c.RubyDirs...) {
		if d == "" {
			continue
		}
		clean := filepath.Clean(d)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		dirs = append(dirs, clean)
	}
	return dirs
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.CacheDir == "" && !c.NoCache {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, KeyCacheDir)
	}
	if c.InstallDir == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, KeyInstallDir)
	}

	u, err := url.Parse(c.ReleasesURL)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, KeyReleasesURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s must be an http(s) URL, got %q", ErrInvalidConfig, KeyReleasesURL, c.ReleasesURL)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %s %q (want debug, info, warn or error)", ErrInvalidConfig, KeyLogLevel, c.LogLevel)
	}

	return nil
}
