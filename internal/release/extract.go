package release

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// Format identifies an archive container.
type Format int

const (
	FormatUnknown Format = iota
	Format7z
	FormatZip
	FormatTarGz
)

func (f Format) String() string {
	switch f {
	case Format7z:
		return "7z"
	case FormatZip:
		return "zip"
	case FormatTarGz:
		return "tar.gz"
	default:
		return "unknown"
	}
}

var (
	magic7z   = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	magicZip  = []byte{'P', 'K', 0x03, 0x04}
	magicGzip = []byte{0x1F, 0x8B}
)

// DetectFormat sniffs the archive format from the file's leading bytes.
// The file name is not consulted.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(magic7z))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, fmt.Errorf("read archive header: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, magic7z):
		return Format7z, nil
	case bytes.HasPrefix(header, magicZip):
		return FormatZip, nil
	case bytes.HasPrefix(header, magicGzip):
		return FormatTarGz, nil
	default:
		return FormatUnknown, nil
	}
}

// Extractor handles archive extraction
type Extractor struct{}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks the archive at archivePath into destDir.
func (e *Extractor) Extract(archivePath, destDir string) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	switch format {
	case Format7z:
		return e.Extract7z(archivePath, destDir)
	case FormatZip:
		return e.ExtractZip(archivePath, destDir)
	case FormatTarGz:
		return e.ExtractTarGz(archivePath, destDir)
	default:
		return fmt.Errorf("unrecognized archive format: %s", filepath.Base(archivePath))
	}
}

// Extract7z extracts a .7z archive to a destination directory
func (e *Extractor) Extract7z(archivePath, destDir string) error {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open 7z archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		info := f.FileInfo()
		if err := extractEntry(destDir, f.Name, info.Mode(), f.Open); err != nil {
			return err
		}
	}
	return nil
}

// ExtractZip extracts a .zip archive to a destination directory
func (e *Extractor) ExtractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractEntry(destDir, f.Name, f.Mode(), f.Open); err != nil {
			return err
		}
	}
	return nil
}

// ExtractTarGz extracts a .tar.gz archive to a destination directory
func (e *Extractor) ExtractTarGz(archivePath, destDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := extractEntry(destDir, header.Name, fs.ModeDir|0755, nil); err != nil {
				return err
			}

		case tar.TypeReg:
			open := func() (io.ReadCloser, error) { return io.NopCloser(tarReader), nil }
			if err := extractEntry(destDir, header.Name, fs.FileMode(header.Mode).Perm(), open); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := extractSymlink(destDir, header.Name, header.Linkname); err != nil {
				return err
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}
}

// safeJoin joins name onto destDir, rejecting entries that escape it.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !within(destDir, target) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

// checkNoSymlinks fails when any existing path component between destDir and
// target is a symlink, so entries are never written through a link created by
// an earlier entry. With includeTarget the final component is checked too.
func checkNoSymlinks(destDir, target string, includeTarget bool) error {
	rel, err := filepath.Rel(destDir, target)
	if err != nil {
		return fmt.Errorf("illegal file path: %s", target)
	}
	if rel == "." {
		return nil
	}

	parts := strings.Split(rel, string(os.PathSeparator))
	if !includeTarget {
		parts = parts[:len(parts)-1]
	}

	current := destDir
	for _, part := range parts {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("stat %s: %w", current, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			rel, _ := filepath.Rel(destDir, current)
			return fmt.Errorf("illegal path through symlink: %s", filepath.ToSlash(rel))
		}
	}
	return nil
}

func within(dir, path string) bool {
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	return path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator))
}

// extractEntry writes one archive entry. open is called only for regular files.
func extractEntry(destDir, name string, mode fs.FileMode, open func() (io.ReadCloser, error)) error {
	target, err := safeJoin(destDir, name)
	if err != nil {
		return err
	}
	if err := checkNoSymlinks(destDir, target, true); err != nil {
		return err
	}

	if mode.IsDir() || strings.HasSuffix(name, "/") {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", target, err)
		}
		return nil
	}

	if !mode.IsRegular() {
		// Symlinks and devices from 7z/zip entries are not materialized.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	perm := mode.Perm()
	if perm&0600 != 0600 {
		perm |= 0600
	}

	rc, err := open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err := io.Copy(outFile, rc); err != nil {
		outFile.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}

	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

// extractSymlink creates a symlink whose target stays inside destDir.
func extractSymlink(destDir, name, linkname string) error {
	target, err := safeJoin(destDir, name)
	if err != nil {
		return err
	}

	if filepath.IsAbs(linkname) {
		return fmt.Errorf("illegal symlink target: %s -> %s", name, linkname)
	}
	if !within(destDir, filepath.Join(filepath.Dir(target), linkname)) {
		return fmt.Errorf("illegal symlink target: %s -> %s", name, linkname)
	}
	if err := checkNoSymlinks(destDir, target, true); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
