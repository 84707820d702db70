// Package platform identifies the operating system and architecture the
// launcher runs on, so release downloads can be matched to it.
//
// OS and architecture come from the Go runtime; on Linux the distribution is
// looked up with gopsutil for diagnostics only. Detection never fails because
// of a missing distribution: it falls back to OS/arch alone.
package platform

import (
	"context"
	"fmt"
)

// Operating system tags as used in release manifests.
const (
	OSLinux   = "linux"
	OSWindows = "windows"
	OSDarwin  = "darwin"
)

// Info contains platform detection information.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // "amd64", "arm64", "386" (normalized)
	ArchRaw string // original GOARCH
	Distro  string // distro ID (Linux only, e.g. "ubuntu")
	Release string // distro version (Linux only, e.g. "22.04")
}

// Tag returns the "os/arch" form used in log lines and error messages.
func (i *Info) Tag() string {
	return fmt.Sprintf("%s/%s", i.OS, i.Arch)
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == OSLinux
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == OSDarwin
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == OSWindows
}

// ExecutableName returns name with the platform's executable suffix.
func (i *Info) ExecutableName(name string) string {
	if i.IsWindows() {
		return name + ".exe"
	}
	return name
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. Useful for tests and for forcing a
// platform from the command line.
type StaticDetector struct {
	Info Info
}

// Detect returns a copy of the configured info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	info := s.Info
	return &info, nil
}
