package ruby

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a concrete Ruby version such as 3.4.5 or 3.5.0-preview1.
type Version struct {
	v *semver.Version
}

// ParseVersion parses a concrete major.minor.patch version. A leading
// "ruby-" or "v" is accepted and dropped.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, enginePrefix)
	raw = strings.TrimPrefix(raw, "v")

	sv, err := semver.StrictNewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q is not a version: %v", ErrInvalidRequest, s, err)
	}
	return Version{v: sv}, nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for tests
// and constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the canonical form, e.g. "3.4.5".
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// IsZero reports whether v was never set.
func (v Version) IsZero() bool {
	return v.v == nil
}

// Compare returns -1, 0 or 1. Prereleases sort before their release.
func (v Version) Compare(o Version) int {
	switch {
	case v.v == nil && o.v == nil:
		return 0
	case v.v == nil:
		return -1
	case o.v == nil:
		return 1
	}
	return v.v.Compare(o.v)
}

// Equal reports whether both versions are identical, prerelease included.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

func (v Version) segments() [3]uint64 {
	return [3]uint64{v.v.Major(), v.v.Minor(), v.v.Patch()}
}
