package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/savechina/rv/internal/platform"
	"github.com/savechina/rv/internal/ruby"
)

// Source says how a ruby was selected.
type Source string

const (
	SourceRequest Source = "request"
	SourcePin     Source = "pin"
	SourceHighest Source = "highest"
)

// RubyFindService locates installed rubies.
type RubyFindService struct {
	dirs []string
	tag  platform.Tag
}

// NewRubyFindService creates a new ruby find service.
func NewRubyFindService(dirs []string, tag platform.Tag) *RubyFindService {
	return &RubyFindService{dirs: dirs, tag: tag}
}

// FindRequest contains parameters for the find operation.
type FindRequest struct {
	// Request is the version to find. Empty uses the pin, then the
	// highest installed version.
	Request string
	// Dir is where pin lookup starts.
	Dir string
}

// FindResult is the selected ruby.
type FindResult struct {
	Ruby   ruby.Ruby
	Source Source
	// PinFile is set when Source is SourcePin.
	PinFile string
}

// Find resolves the request against installed rubies.
func (s *RubyFindService) Find(ctx context.Context, req FindRequest) (*FindResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want, source, pinFile, err := s.request(req)
	if err != nil {
		return nil, err
	}

	installed, err := ruby.Discover(s.dirs)
	if err != nil {
		return nil, err
	}
	found, err := ruby.Resolve(want, installed, s.tag)
	if err != nil {
		if source == SourcePin {
			return nil, fmt.Errorf("%w (pinned in %s)", err, pinFile)
		}
		return nil, err
	}
	return &FindResult{Ruby: found, Source: source, PinFile: pinFile}, nil
}

func (s *RubyFindService) request(req FindRequest) (ruby.Request, Source, string, error) {
	if req.Request != "" {
		want, err := ruby.ParseRequest(req.Request)
		return want, SourceRequest, "", err
	}
	if req.Dir != "" {
		pin, path, err := ruby.ReadPin(req.Dir)
		if err == nil {
			return pin, SourcePin, path, nil
		}
		if !errors.Is(err, ruby.ErrNoPinnedVersion) {
			return ruby.Request{}, "", "", err
		}
	}
	return ruby.Latest, SourceHighest, "", nil
}
