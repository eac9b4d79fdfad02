package platform

import "fmt"

// Tag is the short platform identifier embedded in prebuilt Ruby archive
// names, e.g. ruby-3.4.5.x86_64_linux.tar.gz.
type Tag string

// Known platform tags. These are dictated by the upstream distributor and
// must match its release assets exactly; a typo here surfaces as a 404.
const (
	TagMacOSArm64  Tag = "arm64_sonoma"
	TagMacOSX86_64 Tag = "ventura"
	TagLinuxX86_64 Tag = "x86_64_linux"
	TagLinuxArm64  Tag = "arm64_linux"
)

// String returns the string representation of the tag.
func (t Tag) String() string {
	return string(t)
}

// Target is a normalized (GOOS, GOARCH) pair.
type Target struct {
	OS   string
	Arch string
}

// Table maps every supported target to its platform tag. Anything missing
// from this table is unsupported.
var Table = map[Target]Tag{
	{OS: "darwin", Arch: "arm64"}: TagMacOSArm64,
	{OS: "darwin", Arch: "amd64"}: TagMacOSX86_64,
	{OS: "linux", Arch: "amd64"}:  TagLinuxX86_64,
	{OS: "linux", Arch: "arm64"}:  TagLinuxArm64,
}

// TagFor returns the platform tag for the given GOOS and GOARCH values.
func TagFor(goos, goarch string) (Tag, error) {
	arch, err := normalizeArch(goarch)
	if err != nil {
		return "", err
	}

	tag, ok := Table[Target{OS: goos, Arch: arch}]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return tag, nil
}

// ParseTag validates a tag string against the table.
func ParseTag(s string) (Tag, error) {
	for _, tag := range Table {
		if string(tag) == s {
			return tag, nil
		}
	}
	return "", fmt.Errorf("%w: unknown tag %q", ErrUnsupportedPlatform, s)
}
