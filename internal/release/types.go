package release

import (
	"errors"
	"path/filepath"
)

var (
	// ErrDownloadInProgress is returned when a download is started while another runs.
	ErrDownloadInProgress = errors.New("download already in progress")
	// ErrCanceled is returned when a download is canceled by the user.
	ErrCanceled = errors.New("download canceled")
	// ErrUnexpectedContentType is returned when the server sent a non-archive media type.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrHashMismatch is returned when a downloaded file does not match its expected hash.
	ErrHashMismatch = errors.New("hash mismatch")
	// ErrExtractionFailed is returned when an archive cannot be unpacked.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrBinDirectoryMissing is returned when no bin directory exists in a release.
	ErrBinDirectoryMissing = errors.New("bin directory missing")
	// ErrExecutableMissing is returned when the bin directory lacks the executable.
	ErrExecutableMissing = errors.New("executable missing")
)

// Layout describes the directories owned by the release pipeline.
type Layout struct {
	DataDir string
}

// StagingDir is where archives are downloaded before installation.
func (l Layout) StagingDir() string {
	return filepath.Join(l.DataDir, "staging", "download")
}

// InstallDir is the root of the install cache.
func (l Layout) InstallDir() string {
	return filepath.Join(l.DataDir, "installed")
}

// StagingPath returns the staging location of an archive.
func (l Layout) StagingPath(fileName string) string {
	return filepath.Join(l.StagingDir(), fileName)
}

// InstalledRelease is an unpacked release in the install cache.
type InstalledRelease struct {
	FolderName string
	Path       string
}
