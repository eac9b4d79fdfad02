package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/savechina/rv/internal/cache"
	"github.com/savechina/rv/internal/config"
	"github.com/savechina/rv/internal/platform"
	"github.com/savechina/rv/internal/release"
	"github.com/savechina/rv/internal/transport"
)

// Replaced in tests.
var (
	newDetector = platform.NewDetector
	getwd       = os.Getwd
)

type rootOptions struct {
	configFile string
	logLevel   string
}

// app is the per-invocation state shared by all subcommands.
type app struct {
	cfg    *config.Config
	info   *platform.Info
	logger config.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:           "rv",
		Short:         "Install and run Ruby versions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, opts)
		},
	}
	cmd.SetVersionTemplate("rv {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/rv/config.lua)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newRubyCmd(a), newCacheCmd(a))
	return cmd
}

// init detects the platform and loads the configuration. An unsupported
// platform is fatal for every command.
func (a *app) init(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	a.stdout = cmd.OutOrStdout()
	a.stderr = cmd.ErrOrStderr()

	info, err := newDetector().Detect(ctx)
	if err != nil {
		return err
	}
	a.info = info

	cfg, err := config.Load(ctx, config.LoadOptions{ConfigFile: opts.configFile, Platform: info})
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	a.logger, err = newLogger(a.stderr, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	a.logger.Debug("detected platform", "os", info.OS, "arch", info.Arch, "tag", info.Tag, "distro", info.Platform, "version", info.Version)
	if cfg.File != "" {
		a.logger.Debug("loaded config file", "path", cfg.File)
	}
	return nil
}

func (a *app) client() *transport.Client {
	return transport.New("rv/"+Version, transport.WithLogger(a.logger))
}

func (a *app) resolver() *release.Resolver {
	return release.NewResolver(a.cfg.ReleasesURL, a.client(), a.logger)
}

// openCache returns the tarball cache. Callers must Close it.
func (a *app) openCache() (*cache.Cache, error) {
	return cache.New(cache.Options{
		Root:     a.cfg.CacheDir,
		Disabled: a.cfg.NoCache,
		Out:      a.stdout,
		Logger:   a.logger,
	})
}
