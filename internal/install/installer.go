// Package install installs and removes Ruby versions.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/savechina/rv/internal/archive"
	"github.com/savechina/rv/internal/cache"
	"github.com/savechina/rv/internal/config"
	"github.com/savechina/rv/internal/platform"
	"github.com/savechina/rv/internal/release"
	"github.com/savechina/rv/internal/ruby"
)

// Resolver maps a request to a downloadable release.
type Resolver interface {
	Resolve(ctx context.Context, req ruby.Request, tag platform.Tag) (*release.Release, error)
}

// Cache returns a local copy of a URL, fetching it on a miss.
type Cache interface {
	GetOrFetch(ctx context.Context, url string, fetch cache.FetchFunc) (string, error)
}

// Downloader streams a URL into a file.
type Downloader interface {
	Download(ctx context.Context, url, dst string) (int64, error)
}

// Extractor unpacks an archive into its install directory.
type Extractor interface {
	Install(ctx context.Context, tarball, installDir string) error
}

// Config holds the collaborators of an Installer.
type Config struct {
	// InstallDir is the default install root.
	InstallDir string
	// Tag is the host platform tag.
	Tag        platform.Tag
	Resolver   Resolver
	Cache      Cache
	Downloader Downloader
	// Extractor defaults to archive.NewExtractor.
	Extractor Extractor
	// Out receives progress messages. Defaults to io.Discard.
	Out    io.Writer
	Logger config.Logger
}

// Options describes one install.
type Options struct {
	Request ruby.Request
	// InstallDir overrides the install root for this install.
	InstallDir string
	// TarballPath installs from a local archive instead of downloading.
	// Request must then be an exact version.
	TarballPath string
}

// Installer downloads and extracts Ruby releases.
type Installer struct {
	installDir string
	tag        platform.Tag
	resolver   Resolver
	cache      Cache
	downloader Downloader
	extractor  Extractor
	out        io.Writer
	logger     config.Logger
}

// NewInstaller creates a new installer
func NewInstaller(cfg Config) (*Installer, error) {
	switch {
	case cfg.InstallDir == "":
		return nil, errors.New("install dir is required")
	case cfg.Tag == "":
		return nil, errors.New("platform tag is required")
	case cfg.Resolver == nil, cfg.Cache == nil, cfg.Downloader == nil:
		return nil, errors.New("resolver, cache and downloader are required")
	}

	i := &Installer{
		installDir: cfg.InstallDir,
		tag:        cfg.Tag,
		resolver:   cfg.Resolver,
		cache:      cfg.Cache,
		downloader: cfg.Downloader,
		extractor:  cfg.Extractor,
		out:        cfg.Out,
		logger:     config.OrNop(cfg.Logger),
	}
	if i.out == nil {
		i.out = io.Discard
	}
	if i.extractor == nil {
		i.extractor = archive.NewExtractor(cfg.Logger)
	}
	return i, nil
}

// Install installs the requested Ruby and returns it. Resolution, download
// and extraction errors are returned unchanged in kind.
func (i *Installer) Install(ctx context.Context, opts Options) (ruby.Ruby, error) {
	root := i.installDir
	if opts.InstallDir != "" {
		root = opts.InstallDir
	}

	var (
		version ruby.Version
		tarball string
	)
	if opts.TarballPath != "" {
		v, ok := opts.Request.Version()
		if !ok {
			return ruby.Ruby{}, fmt.Errorf("%w: installing from a tarball needs an exact version, got %s", ruby.ErrInvalidRequest, opts.Request)
		}
		if _, err := os.Stat(opts.TarballPath); err != nil {
			return ruby.Ruby{}, fmt.Errorf("tarball %s: %w", opts.TarballPath, err)
		}
		version, tarball = v, opts.TarballPath
		i.logger.Debug("installing from local tarball", "path", tarball, "version", version.String())
	} else {
		rel, err := i.resolver.Resolve(ctx, opts.Request, i.tag)
		if err != nil {
			return ruby.Ruby{}, err
		}
		i.logger.Debug("resolved release", "request", opts.Request.String(), "url", rel.URL())

		tarball, err = i.cache.GetOrFetch(ctx, rel.URL(), i.fetch)
		if err != nil {
			return ruby.Ruby{}, err
		}
		version = rel.Version
	}

	dir := ruby.InstallPath(root, version, i.tag)
	if err := i.extractor.Install(ctx, tarball, dir); err != nil {
		return ruby.Ruby{}, err
	}

	fmt.Fprintf(i.out, "Installed Ruby %s to %s\n", version, color.CyanString(dir))
	i.logger.Info("installed ruby", "version", version.String(), "path", dir)
	return ruby.Ruby{Version: version, Tag: i.tag, Path: dir}, nil
}

// fetch is the cache miss path.
func (i *Installer) fetch(ctx context.Context, url, dst string) error {
	fmt.Fprintf(i.out, "Downloading %s\n", url)
	n, err := i.downloader.Download(ctx, url, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(i.out, "Downloaded %s\n", humanize.Bytes(uint64(n)))
	return nil
}
