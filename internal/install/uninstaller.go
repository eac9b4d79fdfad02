package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/savechina/rv/internal/config"
	"github.com/savechina/rv/internal/platform"
	"github.com/savechina/rv/internal/ruby"
)

// RemoveError reports an install tree that could not be deleted.
type RemoveError struct {
	Dir string
	Err error
}

func (e *RemoveError) Error() string {
	return fmt.Sprintf("could not delete dir %s: %v", e.Dir, e.Err)
}

func (e *RemoveError) Unwrap() error {
	return e.Err
}

// Uninstaller removes installed rubies. The download cache is never touched.
type Uninstaller struct {
	dirs   []string
	tag    platform.Tag
	out    io.Writer
	logger config.Logger
}

// NewUninstaller creates an Uninstaller searching dirs for rubies built for tag.
func NewUninstaller(dirs []string, tag platform.Tag, out io.Writer, logger config.Logger) *Uninstaller {
	if out == nil {
		out = io.Discard
	}
	return &Uninstaller{
		dirs:   dirs,
		tag:    tag,
		out:    out,
		logger: config.OrNop(logger),
	}
}

// Uninstall deletes the installed ruby matching req. Without a match it
// returns ruby.ErrNoMatchingRuby and changes nothing.
func (u *Uninstaller) Uninstall(ctx context.Context, req ruby.Request) (ruby.Ruby, error) {
	if err := ctx.Err(); err != nil {
		return ruby.Ruby{}, err
	}

	installed, err := ruby.Discover(u.dirs)
	if err != nil {
		return ruby.Ruby{}, err
	}
	target, err := ruby.Resolve(req, installed, u.tag)
	if err != nil {
		return ruby.Ruby{}, err
	}

	fmt.Fprintf(u.out, "Deleting %s\n", color.CyanString(target.Path))
	if err := os.RemoveAll(target.Path); err != nil {
		return ruby.Ruby{}, &RemoveError{Dir: target.Path, Err: err}
	}

	// <root>/<version> goes too once its last platform tree is gone
	versionDir := filepath.Dir(target.Path)
	if err := os.Remove(versionDir); err != nil && !os.IsNotExist(err) {
		u.logger.Debug("keeping version dir", "path", versionDir, "error", err)
	}

	u.logger.Info("uninstalled ruby", "version", target.Version.String(), "path", target.Path)
	return target, nil
}
