package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct {
	goos   string
	goarch string
}

// NewDetector creates a new platform detector for the running host.
func NewDetector() Detector {
	return &RealDetector{goos: runtime.GOOS, goarch: runtime.GOARCH}
}

// Detect performs platform detection and returns platform information.
//
// The platform tag is a pure function of GOOS and GOARCH; an unsupported
// pair fails with ErrUnsupportedPlatform. Distribution details come from
// gopsutil and are best effort: if they cannot be read, the fields are left
// empty and detection still succeeds.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      d.goos,
		ArchRaw: d.goarch,
	}

	arch, err := normalizeArch(d.goarch)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	tag, err := TagFor(d.goos, d.goarch)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Tag = tag

	platform, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		// Cancellation is a hard failure, anything else is ignored
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	info.Platform = normalizePlatform(platform)
	info.Version = normalizePlatform(version)

	return info, nil
}
