package release

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/sha3"
)

// testEntry is a file in a generated archive. A name ending in "/" is a
// directory; a non-empty Link makes a tar symlink.
type testEntry struct {
	Name    string
	Content string
	Mode    os.FileMode
	Link    string
}

// createTestZip writes a zip archive to dir/name.
func createTestZip(t *testing.T, dir, name string, entries []testEntry) string {
	t.Helper()

	archivePath := filepath.Join(dir, name)
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		header := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		if e.Name[len(e.Name)-1] == '/' {
			header.SetMode(os.ModeDir | 0755)
		} else {
			header.SetMode(e.Mode)
		}

		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(e.Content)); err != nil {
			t.Fatalf("failed to write content for %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
	return archivePath
}

// createTestTarGz writes a tar.gz archive to dir/name.
func createTestTarGz(t *testing.T, dir, name string, entries []testEntry) string {
	t.Helper()

	archivePath := filepath.Join(dir, name)
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = f.Close() }()

	gzipWriter := gzip.NewWriter(f)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range entries {
		header := &tar.Header{
			Name: e.Name,
			Mode: int64(e.Mode.Perm()),
			Size: int64(len(e.Content)),
		}
		if e.Name[len(e.Name)-1] == '/' {
			header.Typeflag = tar.TypeDir
			header.Mode = 0755
			header.Size = 0
		}
		if e.Link != "" {
			header.Typeflag = tar.TypeSymlink
			header.Linkname = e.Link
			header.Mode = 0777
			header.Size = 0
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if header.Typeflag == tar.TypeReg || header.Typeflag == 0 {
			if _, err := tarWriter.Write([]byte(e.Content)); err != nil {
				t.Fatalf("failed to write content for %s: %v", e.Name, err)
			}
		}
	}

	if err := tarWriter.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return archivePath
}

// sha3File returns the SHA3-256 hex digest of a file.
func sha3File(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
