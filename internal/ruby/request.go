package ruby

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRequest is returned for strings that are not version requests.
	ErrInvalidRequest = errors.New("invalid ruby version request")
	// ErrNoMatchingRuby is returned when no installed ruby satisfies a request.
	ErrNoMatchingRuby = errors.New("no matching ruby version found")
)

const enginePrefix = "ruby-"

// Kind classifies a Request.
type Kind int

const (
	// KindExact requires a full major.minor.patch match.
	KindExact Kind = iota
	// KindPartial matches any version starting with the given segments.
	KindPartial
	// KindLatest matches the newest available version.
	KindLatest
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindPartial:
		return "partial"
	case KindLatest:
		return "latest"
	default:
		return "unknown"
	}
}

var requestPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z][0-9A-Za-z.]*))?$`)

// Request is a parsed version request. The zero value is not valid; use
// ParseRequest.
type Request struct {
	kind     Kind
	segments []uint64
	version  Version // set for KindExact
}

// Latest is the request for the newest version.
var Latest = Request{kind: KindLatest}

// ParseRequest parses a user supplied version request.
func ParseRequest(s string) (Request, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return Request{}, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	if raw == "latest" || raw == "ruby" {
		return Latest, nil
	}
	raw = strings.TrimPrefix(raw, enginePrefix)

	m := requestPattern.FindStringSubmatch(raw)
	if m == nil {
		return Request{}, fmt.Errorf("%w: %q", ErrInvalidRequest, s)
	}

	var segments []uint64
	for _, part := range m[1:4] {
		if part == "" {
			break
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %q: %v", ErrInvalidRequest, s, err)
		}
		segments = append(segments, n)
	}

	prerelease := m[4]
	if len(segments) < 3 {
		if prerelease != "" {
			return Request{}, fmt.Errorf("%w: %q: prerelease needs a full version", ErrInvalidRequest, s)
		}
		return Request{kind: KindPartial, segments: segments}, nil
	}

	v, err := ParseVersion(raw)
	if err != nil {
		return Request{}, err
	}
	return Request{kind: KindExact, segments: segments, version: v}, nil
}

// MustParseRequest is like ParseRequest but panics on error.
func MustParseRequest(s string) Request {
	r, err := ParseRequest(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Kind returns the request kind.
func (r Request) Kind() Kind {
	return r.kind
}

// Version returns the concrete version of an exact request.
func (r Request) Version() (Version, bool) {
	return r.version, r.kind == KindExact
}

// Matches reports whether v satisfies the request.
func (r Request) Matches(v Version) bool {
	if v.IsZero() {
		return false
	}
	switch r.kind {
	case KindLatest:
		return true
	case KindExact:
		return r.version.Equal(v)
	case KindPartial:
		have := v.segments()
		for i, want := range r.segments {
			if have[i] != want {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String returns the canonical request text, e.g. "3.4", "3.4.5" or "latest".
func (r Request) String() string {
	switch r.kind {
	case KindLatest:
		return "latest"
	case KindExact:
		return r.version.String()
	default:
		parts := make([]string, len(r.segments))
		for i, s := range r.segments {
			parts[i] = strconv.FormatUint(s, 10)
		}
		return strings.Join(parts, ".")
	}
}
