package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedCatalog is returned when a manifest cannot be parsed or fails validation.
	ErrMalformedCatalog = errors.New("malformed version catalog")
	// ErrNoStableVersion is returned when the catalog has no stable version.
	ErrNoStableVersion = errors.New("no stable version available")
	// ErrNoDownloadForPlatform is returned when a version has no download for the platform.
	ErrNoDownloadForPlatform = errors.New("no download for platform")
	// ErrVersionNotFound is returned by VersionByID for unknown ids.
	ErrVersionNotFound = errors.New("version not found")
	// ErrSignatureInvalid is returned when a manifest signature does not verify.
	ErrSignatureInvalid = errors.New("manifest signature invalid")
)

// Platform is the OS/architecture pair a download targets.
type Platform struct {
	OS   string
	Arch string
}

func (p Platform) String() string {
	if p.Arch == "" {
		return p.OS
	}
	return fmt.Sprintf("%s/%s", p.OS, p.Arch)
}

// PlatformDownload is one downloadable build of a version.
// It is a value type: a copy taken for a download attempt cannot change
// when the catalog is reloaded.
type PlatformDownload struct {
	VersionID  string
	Platform   Platform
	URL        string
	FileName   string
	Hash       string
	FolderName string
}

// Version is a release listed in the manifest.
type Version struct {
	ID         string
	ReleaseNum string
	Stable     bool
	downloads  []PlatformDownload
}

// Downloads returns a copy of the version's platform downloads.
func (v Version) Downloads() []PlatformDownload {
	out := make([]PlatformDownload, len(v.downloads))
	copy(out, v.downloads)
	return out
}

// Label returns the display label, e.g. "0.6.1 (Stable)".
func (v Version) Label() string {
	if v.Stable {
		return v.ReleaseNum + " (Stable)"
	}
	return v.ReleaseNum
}
