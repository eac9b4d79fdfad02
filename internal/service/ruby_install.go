package service

import (
	"context"

	"github.com/savechina/rv/internal/install"
	"github.com/savechina/rv/internal/ruby"
)

// Installer installs one ruby.
type Installer interface {
	Install(ctx context.Context, opts install.Options) (ruby.Ruby, error)
}

// RubyInstallService orchestrates the ruby install operation.
type RubyInstallService struct {
	installer Installer
}

// NewRubyInstallService creates a new ruby install service.
func NewRubyInstallService(installer Installer) *RubyInstallService {
	return &RubyInstallService{installer: installer}
}

// InstallRequest contains parameters for the install operation.
type InstallRequest struct {
	Version     string
	InstallDir  string
	TarballPath string
}

// InstallResult is the installed ruby.
type InstallResult struct {
	Ruby ruby.Ruby
}

// Install parses the requested version and installs it.
func (s *RubyInstallService) Install(ctx context.Context, req InstallRequest) (*InstallResult, error) {
	want, err := ruby.ParseRequest(req.Version)
	if err != nil {
		return nil, err
	}

	installed, err := s.installer.Install(ctx, install.Options{
		Request:     want,
		InstallDir:  req.InstallDir,
		TarballPath: req.TarballPath,
	})
	if err != nil {
		return nil, err
	}
	return &InstallResult{Ruby: installed}, nil
}
