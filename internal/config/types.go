package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/thrive-launcher/launcher/internal/release"
)

// Settings is the complete launcher configuration.
type Settings struct {
	// DataDir holds staged downloads, installed releases and logs.
	DataDir string
	// Manifest is an http(s) URL or a local path to the version manifest.
	Manifest string
	// Keyring is an optional OpenPGP public key file for manifest signatures.
	Keyring string

	Executable string
	BinDir     string

	// LogLines is the capacity of the game output buffer.
	LogLines int
	// LogFile receives launcher logs; empty means stderr.
	LogFile  string
	LogLevel string

	// StrictCache requires the content-hash marker for a cache hit.
	StrictCache bool

	Download DownloadSettings
}

// DownloadSettings configures the release downloader.
type DownloadSettings struct {
	Retries      int
	Timeout      time.Duration
	UserAgent    string
	ContentTypes []string
}

// Defaults returns the settings used when no file overrides them.
func Defaults(configDir, dataDir string) Settings {
	return Settings{
		DataDir:    dataDir,
		Manifest:   filepath.Join(configDir, ManifestFileName),
		Executable: DefaultExecutable,
		BinDir:     DefaultBinDir,
		LogLines:   DefaultLogLines,
		LogLevel:   DefaultLogLevel,
		Download: DownloadSettings{
			Retries:      DefaultRetries,
			Timeout:      DefaultTimeout,
			UserAgent:    DefaultUserAgent,
			ContentTypes: append([]string(nil), release.DefaultContentTypes...),
		},
	}
}

// Validate performs basic validation on Settings.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return &ValidationError{Field: luaFieldDataDir, Message: "cannot be empty"}
	}

	if s.Manifest == "" {
		return &ValidationError{Field: luaFieldManifest, Message: "cannot be empty"}
	}
	if err := validateManifestSource(s.Manifest); err != nil {
		return &ValidationError{Field: luaFieldManifest, Message: err.Error()}
	}

	if s.Executable == "" || s.Executable != filepath.Base(s.Executable) {
		return &ValidationError{Field: luaFieldExecutable, Message: fmt.Sprintf("must be a bare file name (got %q)", s.Executable)}
	}
	if s.BinDir == "" || s.BinDir != filepath.Base(s.BinDir) || s.BinDir == ".." {
		return &ValidationError{Field: luaFieldBinDir, Message: fmt.Sprintf("must be a bare directory name (got %q)", s.BinDir)}
	}

	if s.LogLines < 1 || s.LogLines > MaxLogLines {
		return &ValidationError{Field: luaFieldLogLines, Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxLogLines, s.LogLines)}
	}

	if s.Download.Retries < 0 {
		return &ValidationError{Field: "download.retries", Message: "cannot be negative"}
	}
	if s.Download.Timeout <= 0 {
		return &ValidationError{Field: "download.timeout_seconds", Message: "must be positive"}
	}
	if len(s.Download.ContentTypes) == 0 {
		return &ValidationError{Field: "download.content_types", Message: "at least one media type is required"}
	}
	for i, ct := range s.Download.ContentTypes {
		if !strings.Contains(ct, "/") {
			return &ValidationError{Field: fmt.Sprintf("download.content_types[%d]", i), Message: fmt.Sprintf("invalid media type %q", ct)}
		}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// validateManifestSource accepts http(s) URLs and local paths.
func validateManifestSource(source string) error {
	if !strings.Contains(source, "://") {
		return nil
	}

	u, err := url.Parse(source)
	if err != nil {
		return fmt.Errorf("invalid manifest URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("manifest URL must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("manifest URL has no host")
	}
	return nil
}
