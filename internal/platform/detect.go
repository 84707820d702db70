package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using the Go runtime and gopsutil.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect reports the running OS and architecture.
//
// On Linux the distribution is looked up with gopsutil. A lookup failure is
// not an error (the fields stay empty) unless ctx was cancelled.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	goos := NormalizeOS(runtime.GOOS)
	if goos == "" {
		return nil, fmt.Errorf("platform detection failed: unsupported OS %s", runtime.GOOS)
	}

	arch := NormalizeArch(runtime.GOARCH)
	if arch == "" {
		return nil, fmt.Errorf("platform detection failed: unsupported architecture %s", runtime.GOARCH)
	}

	info := &Info{
		OS:      goos,
		Arch:    arch,
		ArchRaw: runtime.GOARCH,
	}

	if info.IsLinux() {
		distro, _, release, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}
		info.Distro = normalizeToken(distro)
		info.Release = normalizeToken(release)
	}

	return info, nil
}
