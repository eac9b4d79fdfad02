// Package release maps Ruby version requests to downloadable release
// artifacts.
package release

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/savechina/rv/internal/config"
	"github.com/savechina/rv/internal/platform"
	"github.com/savechina/rv/internal/ruby"
)

var (
	// ErrMetadata is returned when release metadata cannot be fetched or parsed.
	ErrMetadata = errors.New("could not read release metadata")
	// ErrAmbiguousRequest is returned for requests that need a release
	// catalog to resolve, such as "3.4".
	ErrAmbiguousRequest = errors.New("request does not name a single release")
)

// MetadataClient fetches JSON documents.
type MetadataClient interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Release is a downloadable Ruby build for one platform.
type Release struct {
	Version ruby.Version
	Tag     platform.Tag
	BaseURL string
}

// Filename returns the archive name of the release.
// Pattern: ruby-{version}.{tag}.tar.gz
func (r *Release) Filename() string {
	return fmt.Sprintf("ruby-%s.%s.tar.gz", r.Version, r.Tag)
}

// URL returns the download URL of the release archive.
// Pattern: {base}/latest/download/ruby-{version}.{tag}.tar.gz
func (r *Release) URL() string {
	return fmt.Sprintf("%s/latest/download/%s", r.BaseURL, r.Filename())
}

func (r *Release) String() string {
	return fmt.Sprintf("ruby-%s (%s)", r.Version, r.Tag)
}

// latestMetadata is the subset of the releases API response rv reads.
type latestMetadata struct {
	TagName string `json:"tag_name"`
}

// Resolver resolves requests against a releases base URL.
type Resolver struct {
	baseURL string
	client  MetadataClient
	logger  config.Logger
}

// NewResolver creates a Resolver for baseURL.
func NewResolver(baseURL string, client MetadataClient, logger config.Logger) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  config.OrNop(logger),
	}
}

// New builds the release for an exact version without network access.
func (r *Resolver) New(v ruby.Version, tag platform.Tag) *Release {
	return &Release{Version: v, Tag: tag, BaseURL: r.baseURL}
}

// Resolve turns req into a release for tag. Exact requests are used
// literally; "latest" consults the releases metadata endpoint.
func (r *Resolver) Resolve(ctx context.Context, req ruby.Request, tag platform.Tag) (*Release, error) {
	switch req.Kind() {
	case ruby.KindExact:
		v, _ := req.Version()
		return r.New(v, tag), nil
	case ruby.KindLatest:
		v, err := r.Latest(ctx)
		if err != nil {
			return nil, err
		}
		return r.New(v, tag), nil
	default:
		return nil, fmt.Errorf("%w: %s (use an exact version like 3.4.5 or latest)", ErrAmbiguousRequest, req)
	}
}

// Latest reports the version of the most recent release.
func (r *Resolver) Latest(ctx context.Context) (ruby.Version, error) {
	url := r.baseURL + "/latest"
	r.logger.Debug("fetching latest release metadata", "url", url)

	var meta latestMetadata
	if err := r.client.GetJSON(ctx, url, &meta); err != nil {
		return ruby.Version{}, fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	if meta.TagName == "" {
		return ruby.Version{}, fmt.Errorf("%w: %s: missing tag_name", ErrMetadata, url)
	}

	v, err := ruby.ParseVersion(meta.TagName)
	if err != nil {
		return ruby.Version{}, fmt.Errorf("%w: %s: %w", ErrMetadata, url, err)
	}
	r.logger.Debug("latest release", "version", v.String())
	return v, nil
}
