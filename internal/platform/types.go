// Package platform identifies the host rv runs on and maps it to the
// platform tag used by the upstream prebuilt Ruby archives.
//
// Detection relies on runtime.GOOS and runtime.GOARCH for the tag and on
// gopsutil for Linux distribution details, which are informational only.
// The same information is exposed to Lua configuration files as a
// read-only `platform` table.
package platform

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform is returned when no prebuilt Ruby exists for the
// host's (OS, architecture) pair. It is a configuration error, callers should
// not retry.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin"
	Arch     string // "amd64", "arm64" (normalized)
	ArchRaw  string // original GOARCH
	Tag      Tag    // archive platform tag, e.g. "x86_64_linux"
	Platform string // distro ID (Linux only, e.g. "ubuntu")
	Version  string // distro or OS version, may be empty
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsAppleSilicon returns true if running on Apple Silicon (macOS + arm64).
func (i *Info) IsAppleSilicon() bool {
	return i.OS == "darwin" && i.Arch == "arm64"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It is used when the platform has
// already been detected, and by tests.
type StaticDetector struct {
	Info *Info
	Err  error
}

// Detect returns the pre-configured info and error.
func (s *StaticDetector) Detect(ctx context.Context) (*Info, error) {
	return s.Info, s.Err
}
