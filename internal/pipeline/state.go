// Package pipeline sequences one "play" request from version resolution to
// a running game, and reports progress as typed events.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/thrive-launcher/launcher/internal/catalog"
	"github.com/thrive-launcher/launcher/internal/launch"
	"github.com/thrive-launcher/launcher/internal/release"
)

// State is a step of a play attempt.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateDownloading
	StateVerifying
	StateInstalling
	StateLocating
	StateLaunching
	StateRunning
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateDownloading:
		return "downloading"
	case StateVerifying:
		return "verifying"
	case StateInstalling:
		return "installing"
	case StateLocating:
		return "locating"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason classifies why an attempt ended in Error or was canceled.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCanceled
	ReasonMalformedCatalog
	ReasonSignatureInvalid
	ReasonNoStableVersion
	ReasonVersionNotFound
	ReasonNoDownloadForPlatform
	ReasonDownloadInProgress
	ReasonTransport
	ReasonUnexpectedContentType
	ReasonHashMismatch
	ReasonExtractionFailed
	ReasonBinDirectoryMissing
	ReasonExecutableMissing
	ReasonSpawnFailed
	ReasonCatalogUnavailable
	ReasonInternal
)

var reasonNames = map[Reason]string{
	ReasonNone:                  "none",
	ReasonCanceled:              "canceled",
	ReasonMalformedCatalog:      "malformed-catalog",
	ReasonSignatureInvalid:      "signature-invalid",
	ReasonNoStableVersion:       "no-stable-version",
	ReasonVersionNotFound:       "version-not-found",
	ReasonNoDownloadForPlatform: "no-download-for-platform",
	ReasonDownloadInProgress:    "download-in-progress",
	ReasonTransport:             "transport",
	ReasonUnexpectedContentType: "unexpected-content-type",
	ReasonHashMismatch:          "hash-mismatch",
	ReasonExtractionFailed:      "extraction-failed",
	ReasonBinDirectoryMissing:   "bin-directory-missing",
	ReasonExecutableMissing:     "executable-missing",
	ReasonSpawnFailed:           "spawn-failed",
	ReasonCatalogUnavailable:    "catalog-unavailable",
	ReasonInternal:              "internal",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Message is the user-facing description of r.
func (r Reason) Message() string {
	switch r {
	case ReasonCanceled:
		return "The download was canceled."
	case ReasonMalformedCatalog:
		return "The version list could not be read."
	case ReasonSignatureInvalid:
		return "The version list is not signed by a trusted key."
	case ReasonNoStableVersion:
		return "No stable version is available."
	case ReasonVersionNotFound:
		return "The selected version does not exist."
	case ReasonNoDownloadForPlatform:
		return "The selected version has no download for this platform."
	case ReasonDownloadInProgress:
		return "Another download is already in progress."
	case ReasonTransport:
		return "The download failed. Check your connection and try again."
	case ReasonUnexpectedContentType:
		return "The server did not return a release archive."
	case ReasonHashMismatch:
		return "The downloaded file is corrupt and has been deleted. Please try again."
	case ReasonExtractionFailed:
		return "The release archive could not be unpacked and has been deleted."
	case ReasonBinDirectoryMissing:
		return "The installed release has no bin folder."
	case ReasonExecutableMissing:
		return "The game executable was not found in the bin folder."
	case ReasonSpawnFailed:
		return "The game could not be started."
	case ReasonCatalogUnavailable:
		return "The version list could not be retrieved. Check your connection and try again."
	case ReasonNone:
		return ""
	default:
		return "An unexpected error occurred."
	}
}

// reasonTable maps sentinel errors to reasons; order matters only where a
// chain could match more than one.
var reasonTable = []struct {
	err    error
	reason Reason
}{
	{release.ErrCanceled, ReasonCanceled},
	{catalog.ErrSignatureInvalid, ReasonSignatureInvalid},
	{catalog.ErrMalformedCatalog, ReasonMalformedCatalog},
	{catalog.ErrNoStableVersion, ReasonNoStableVersion},
	{catalog.ErrVersionNotFound, ReasonVersionNotFound},
	{catalog.ErrNoDownloadForPlatform, ReasonNoDownloadForPlatform},
	{release.ErrDownloadInProgress, ReasonDownloadInProgress},
	{release.ErrUnexpectedContentType, ReasonUnexpectedContentType},
	{release.ErrHashMismatch, ReasonHashMismatch},
	{release.ErrExtractionFailed, ReasonExtractionFailed},
	{release.ErrBinDirectoryMissing, ReasonBinDirectoryMissing},
	{release.ErrExecutableMissing, ReasonExecutableMissing},
	{launch.ErrSpawnFailed, ReasonSpawnFailed},
}

// Classify maps err to a Reason by the sentinel it wraps.
func Classify(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	for _, entry := range reasonTable {
		if errors.Is(err, entry.err) {
			return entry.reason
		}
	}
	return ReasonInternal
}

// Failure is the terminal error of an attempt.
type Failure struct {
	// State is the step that failed.
	State  State
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", f.State, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Message is the user-facing description of the failure.
func (f *Failure) Message() string {
	return f.Reason.Message()
}

// Canceled reports whether the attempt was canceled rather than failed.
func (f *Failure) Canceled() bool {
	return f.Reason == ReasonCanceled
}

// newFailure classifies err. Unclassified errors while resolving or
// downloading come from the network.
func newFailure(state State, err error) *Failure {
	reason := Classify(err)
	if reason == ReasonInternal {
		switch state {
		case StateDownloading:
			reason = ReasonTransport
		case StateResolving:
			reason = ReasonCatalogUnavailable
		}
	}
	return &Failure{State: state, Reason: reason, Err: err}
}
