package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/savechina/rv/internal/platform"
)

// envConfigFile names an explicit config file. It has no viper default so
// that its presence alone marks the file as required.
const envConfigFile = EnvPrefix + "_CONFIG_FILE"

// LoadOptions controls Load.
type LoadOptions struct {
	// ConfigFile is an explicit config file. It must exist when set.
	ConfigFile string
	// Platform is injected into the Lua config as the `platform` table.
	Platform *platform.Info
}

// Load builds the Config from defaults, the Lua config file and the
// environment, in increasing order of precedence.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	defaults, err := defaultValues()
	if err != nil {
		return nil, err
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	path, explicit := opts.ConfigFile, opts.ConfigFile != ""
	if !explicit {
		if envPath := os.Getenv(envConfigFile); envPath != "" {
			path, explicit = envPath, true
		} else if path, err = defaultConfigFile(); err != nil {
			return nil, err
		}
	}
	path, err = homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}

	loaded := ""
	if fileExists(path) {
		values, err := parseLuaFile(ctx, path, opts.Platform)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, fmt.Errorf("merge config file %s: %w", path, err)
		}
		loaded = path
	} else if explicit {
		return nil, fmt.Errorf("%w: config file not found: %s", ErrInvalidConfig, path)
	}

	cfg := &Config{
		NoCache:     v.GetBool(KeyNoCache),
		ReleasesURL: strings.TrimRight(v.GetString(KeyReleasesURL), "/"),
		LogLevel:    strings.ToLower(v.GetString(KeyLogLevel)),
		File:        loaded,
	}
	if cfg.CacheDir, err = expandPath(v.GetString(KeyCacheDir)); err != nil {
		return nil, err
	}
	if cfg.InstallDir, err = expandPath(v.GetString(KeyInstallDir)); err != nil {
		return nil, err
	}
	for _, dir := range rubyDirs(v.Get(KeyRubyDirs)) {
		expanded, err := expandPath(dir)
		if err != nil {
			return nil, err
		}
		cfg.RubyDirs = append(cfg.RubyDirs, expanded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultValues returns the built-in defaults keyed like the config file.
func defaultValues() (map[string]any, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		cacheHome = filepath.Join(home, ".cache")
	}
	return map[string]any{
		KeyCacheDir:    filepath.Join(cacheHome, AppName),
		KeyNoCache:     false,
		KeyReleasesURL: DefaultReleasesURL,
		KeyInstallDir:  filepath.Join(home, ".rubies"),
		KeyRubyDirs:    []string{},
		KeyLogLevel:    DefaultLogLevel,
	}, nil
}

// defaultConfigFile is $XDG_CONFIG_HOME/rv/config.lua. It is optional.
func defaultConfigFile() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, AppName, "config.lua"), nil
}

// rubyDirs normalizes ruby_dirs from either the config file (a list) or
// the environment (an OS path list).
func rubyDirs(raw any) []string {
	var dirs []string
	switch v := raw.(type) {
	case string:
		dirs = filepath.SplitList(v)
	case []string:
		dirs = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				dirs = append(dirs, s)
			}
		}
	}

	var out []string
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Clean(expanded), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
