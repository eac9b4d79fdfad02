package service

import (
	"context"

	"github.com/savechina/rv/internal/ruby"
)

// Uninstaller removes one installed ruby.
type Uninstaller interface {
	Uninstall(ctx context.Context, req ruby.Request) (ruby.Ruby, error)
}

// RubyUninstallService orchestrates the ruby uninstall operation.
type RubyUninstallService struct {
	uninstaller Uninstaller
}

// NewRubyUninstallService creates a new ruby uninstall service.
func NewRubyUninstallService(uninstaller Uninstaller) *RubyUninstallService {
	return &RubyUninstallService{uninstaller: uninstaller}
}

// Uninstall removes the installed ruby matching version.
func (s *RubyUninstallService) Uninstall(ctx context.Context, version string) (ruby.Ruby, error) {
	want, err := ruby.ParseRequest(version)
	if err != nil {
		return ruby.Ruby{}, err
	}
	return s.uninstaller.Uninstall(ctx, want)
}
