package release

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thrive-launcher/launcher/internal/catalog"
	"github.com/thrive-launcher/launcher/internal/logging"
)

// ContentHashFile is written into every installed folder and holds the
// hash the archive was verified against.
const ContentHashFile = ".content-hash"

// ArchiveExtractor unpacks an archive into a directory.
type ArchiveExtractor interface {
	Extract(archivePath, destDir string) error
}

// Cache is the content-addressed store of unpacked releases.
// Its state is read from the filesystem on every call.
type Cache struct {
	root      string
	extractor ArchiveExtractor
	strict    bool
	logger    logging.Logger
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Extractor defaults to NewExtractor().
	Extractor ArchiveExtractor
	// Strict requires the content-hash marker to match the record's hash.
	Strict bool
	Logger logging.Logger
}

// NewCache creates a cache rooted at root.
func NewCache(root string, opts CacheOptions) *Cache {
	if opts.Extractor == nil {
		opts.Extractor = NewExtractor()
	}
	return &Cache{
		root:      root,
		extractor: opts.Extractor,
		strict:    opts.Strict,
		logger:    logging.OrNoop(opts.Logger),
	}
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

// PathFor returns where d is (or would be) installed.
func (c *Cache) PathFor(d catalog.PlatformDownload) string {
	return filepath.Join(c.root, d.FolderName)
}

// Has reports whether d is installed.
func (c *Cache) Has(d catalog.PlatformDownload) bool {
	info, err := os.Stat(c.PathFor(d))
	if err != nil || !info.IsDir() {
		return false
	}
	if !c.strict {
		return true
	}

	marker, err := os.ReadFile(filepath.Join(c.PathFor(d), ContentHashFile))
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(string(marker)), strings.TrimSpace(d.Hash))
}

// Install unpacks the verified archive for d into the cache.
//
// When d is already installed nothing is extracted. On failure the partial
// extraction and the archive itself are removed and the error wraps
// ErrExtractionFailed. Concurrent installs of the same folder from another
// process fail with ErrInstallLocked.
func (c *Cache) Install(d catalog.PlatformDownload, verifiedArchivePath string) (InstalledRelease, error) {
	final := c.PathFor(d)
	release := InstalledRelease{FolderName: d.FolderName, Path: final}

	if c.Has(d) {
		c.logger.Debug("release already installed", "folder", d.FolderName)
		return release, nil
	}

	lock, err := acquireInstallLock(c.root, d.FolderName)
	if err != nil {
		return InstalledRelease{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			c.logger.Warn("failed to release install lock", "folder", d.FolderName, "error", err)
		}
	}()

	// Another process may have completed the install before the lock was taken.
	if c.Has(d) {
		return release, nil
	}

	tmpDir, err := os.MkdirTemp(c.root, "."+d.FolderName+".partial-")
	if err != nil {
		return InstalledRelease{}, fmt.Errorf("create temp install dir: %w", err)
	}

	fail := func(err error) (InstalledRelease, error) {
		os.RemoveAll(tmpDir)
		if rmErr := os.Remove(verifiedArchivePath); rmErr != nil && !os.IsNotExist(rmErr) {
			c.logger.Warn("failed to remove bad archive", "path", verifiedArchivePath, "error", rmErr)
		}
		return InstalledRelease{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	c.logger.Info("extracting release", "archive", verifiedArchivePath, "folder", d.FolderName)
	if err := c.extractor.Extract(verifiedArchivePath, tmpDir); err != nil {
		return fail(err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, ContentHashFile), []byte(d.Hash+"\n"), 0644); err != nil {
		return fail(fmt.Errorf("write content hash: %w", err))
	}

	// Only reachable in strict mode: a folder whose marker does not match.
	if _, err := os.Stat(final); err == nil {
		c.logger.Warn("replacing unverified install", "folder", d.FolderName)
		if err := os.RemoveAll(final); err != nil {
			os.RemoveAll(tmpDir)
			return InstalledRelease{}, fmt.Errorf("remove stale install: %w", err)
		}
	}

	if err := os.Rename(tmpDir, final); err != nil {
		os.RemoveAll(tmpDir)
		return InstalledRelease{}, fmt.Errorf("move release into place: %w", err)
	}

	c.logger.Info("release installed", "folder", d.FolderName, "path", final)
	return release, nil
}

// Installed lists the releases currently in the cache, sorted by folder name.
func (c *Cache) Installed() ([]InstalledRelease, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read install dir: %w", err)
	}

	var out []InstalledRelease
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, InstalledRelease{FolderName: e.Name(), Path: filepath.Join(c.root, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FolderName < out[j].FolderName })
	return out, nil
}

// Remove deletes an installed release.
func (c *Cache) Remove(folderName string) error {
	if folderName == "" || folderName != filepath.Base(folderName) || strings.HasPrefix(folderName, ".") {
		return fmt.Errorf("invalid folder name: %q", folderName)
	}

	path := filepath.Join(c.root, folderName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("release %s is not installed", folderName)
		}
		return fmt.Errorf("stat release: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove release: %w", err)
	}
	c.logger.Info("release removed", "folder", folderName)
	return nil
}
