// Package service implements the rv commands on top of the domain packages.
// Each service handles one command and returns a result for the CLI to render.
package service

import (
	"context"

	"github.com/savechina/rv/internal/config"
	"github.com/savechina/rv/internal/platform"
	"github.com/savechina/rv/internal/ruby"
)

// LatestFetcher reports the newest remotely available version.
type LatestFetcher interface {
	Latest(ctx context.Context) (ruby.Version, error)
}

// RubyListService orchestrates the ruby list operation.
type RubyListService struct {
	dirs   []string
	tag    platform.Tag
	remote LatestFetcher
	logger config.Logger
}

// NewRubyListService creates a new ruby list service. remote may be nil.
func NewRubyListService(dirs []string, tag platform.Tag, remote LatestFetcher, logger config.Logger) *RubyListService {
	return &RubyListService{
		dirs:   dirs,
		tag:    tag,
		remote: remote,
		logger: config.OrNop(logger),
	}
}

// ListRequest contains parameters for listing rubies.
type ListRequest struct {
	// Filter restricts the list to versions matching a request like "3.4".
	Filter string
	// InstalledOnly skips the remote lookup.
	InstalledOnly bool
	// Dir is where pin lookup starts; empty disables marking the pinned ruby.
	Dir string
}

// ListEntry is one row of the list.
type ListEntry struct {
	Version   string       `json:"version"`
	Tag       platform.Tag `json:"platform"`
	Path      string       `json:"path,omitempty"`
	Installed bool         `json:"installed"`
	Pinned    bool         `json:"pinned,omitempty"`
}

// ListResult contains the results of the list operation.
type ListResult struct {
	Rubies []ListEntry `json:"rubies"`
}

// List returns installed rubies, newest first, followed by the latest
// remote release when it is not installed. The remote lookup is best effort.
func (s *RubyListService) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter := ruby.Latest
	if req.Filter != "" {
		parsed, err := ruby.ParseRequest(req.Filter)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}

	installed, err := ruby.Discover(s.dirs)
	if err != nil {
		return nil, err
	}

	var pinned ruby.Ruby
	if req.Dir != "" {
		if pin, _, err := ruby.ReadPin(req.Dir); err == nil {
			pinned, _ = ruby.Resolve(pin, installed, s.tag)
		}
	}

	result := &ListResult{Rubies: []ListEntry{}}
	for _, r := range ruby.Filter(filter, installed) {
		result.Rubies = append(result.Rubies, ListEntry{
			Version:   r.Version.String(),
			Tag:       r.Tag,
			Path:      r.Path,
			Installed: true,
			Pinned:    pinned.Path != "" && r.Path == pinned.Path,
		})
	}

	if req.InstalledOnly || s.remote == nil {
		return result, nil
	}

	latest, err := s.remote.Latest(ctx)
	if err != nil {
		s.logger.Warn("could not fetch latest release", "error", err)
		return result, nil
	}
	if !filter.Matches(latest) {
		return result, nil
	}
	for _, r := range installed {
		if r.Tag == s.tag && r.Version.Equal(latest) {
			return result, nil
		}
	}
	result.Rubies = append(result.Rubies, ListEntry{Version: latest.String(), Tag: s.tag})
	return result, nil
}
