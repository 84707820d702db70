package main

import (
	"archive/zip"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/thrive-launcher/launcher/internal/testutil"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(append([]string{"thrive-launcher", "--platform", "linux/amd64"}, args...), &out, &out)
	return out.String(), err
}

func gameArchive(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		header.SetMode(0755)
		w, err := zw.CreateHeader(header)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	sum := sha3.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:])
}

// serveRelease writes a manifest into the test config dir whose 0.6.1 linux
// record points at an httptest server returning archive.
func serveRelease(t *testing.T, env testutil.Env, archive []byte, hash string) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-7z-compressed")
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)

	manifest := fmt.Sprintf(`{"versions": [
	  {"id": "11", "releaseNum": "0.6.0", "stable": true, "downloads": [
	    {"os": "windows", "arch": "amd64", "url": "%[1]s/thrive_0.6.0_windows.7z", "hash": "00", "folderName": "thrive_0.6.0_windows"}
	  ]},
	  {"id": "12", "releaseNum": "0.6.1", "stable": true, "downloads": [
	    {"os": "linux", "arch": "amd64", "url": "%[1]s/thrive_0.6.1_linux.7z", "hash": "%[2]s", "folderName": "thrive_0.6.1_linux"}
	  ]},
	  {"id": "13", "releaseNum": "0.6.2-beta", "stable": false, "downloads": [
	    {"os": "linux", "url": "%[1]s/thrive_0.6.2_linux.7z", "hash": "00", "folderName": "thrive_0.6.2_linux"}
	  ]}
	]}`, srv.URL, hash)
	require.NoError(t, os.WriteFile(filepath.Join(env.ConfigDir, "thrive_versions.json"), []byte(manifest), 0o600))
}

func TestRunMain_UnknownCommand(t *testing.T) {
	testutil.SetupTestEnv(t)

	var out bytes.Buffer
	code := 0
	runMain([]string{"thrive-launcher", "bogus"}, &out, &out, func(c int) { code = c })
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "unknown command")
}

func TestRunMain_ExitCodeError(t *testing.T) {
	orig := executeFunc
	t.Cleanup(func() { executeFunc = orig })
	executeFunc = func(args []string, stdout, stderr io.Writer) error {
		return &exitCodeError{Code: 7}
	}

	var out bytes.Buffer
	code := -1
	runMain([]string{"thrive-launcher"}, &out, &out, func(c int) { code = c })
	assert.Equal(t, 7, code)
	assert.Empty(t, out.String())
}

func TestVersionsCommand(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	serveRelease(t, env, []byte("x"), strings.Repeat("a", 64))

	out, err := run(t, "versions")
	require.NoError(t, err)
	assert.Contains(t, out, "* 12")
	assert.Contains(t, out, "0.6.1 (Stable)")
	assert.Contains(t, out, "0.6.2-beta")
	assert.NotContains(t, out, "0.6.0", "windows-only version is hidden without --all")

	out, err = run(t, "versions", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "0.6.0 (Stable) (not available for linux/amd64)")
}

func TestVersionsCommand_BadManifest(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.ConfigDir, "thrive_versions.json"), []byte("{"), 0o600))

	_, err := run(t, "versions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestPlayCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("release fixture is a shell script")
	}
	env := testutil.SetupTestEnv(t)
	archive, hash := gameArchive(t, map[string]string{
		"bin/Thrive": "#!/bin/sh\necho hello from thrive\necho oops >&2\n",
	})
	serveRelease(t, env, archive, hash)

	out, err := run(t, "play")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Downloading...")
	assert.Contains(t, out, "Process Started")
	assert.Contains(t, out, "hello from thrive")
	assert.Contains(t, out, "ERROR: oops")
	assert.Contains(t, out, "process exited normally")

	out, err = run(t, "installed")
	require.NoError(t, err)
	assert.Contains(t, out, "thrive_0.6.1_linux")

	// Second run uses the cache.
	out, err = run(t, "play")
	require.NoError(t, err, out)
	assert.NotContains(t, out, "Downloading...")

	out, err = run(t, "remove", "thrive_0.6.1_linux")
	require.NoError(t, err)
	assert.Contains(t, out, "removed thrive_0.6.1_linux")

	out, err = run(t, "installed")
	require.NoError(t, err)
	assert.Contains(t, out, "No releases installed")
}

func TestPlayCommand_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("release fixture is a shell script")
	}
	env := testutil.SetupTestEnv(t)
	archive, hash := gameArchive(t, map[string]string{"bin/Thrive": "#!/bin/sh\nexit 4\n"})
	serveRelease(t, env, archive, hash)

	out, err := run(t, "play")
	var codeErr *exitCodeError
	require.ErrorAs(t, err, &codeErr, out)
	assert.Equal(t, 4, codeErr.Code)
	assert.Contains(t, out, "process exited with code 4")
}

func TestPlayCommand_HashMismatch(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	archive, _ := gameArchive(t, map[string]string{"bin/Thrive": "game"})
	serveRelease(t, env, archive, strings.Repeat("0", 64))

	_, err := run(t, "play")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")

	staged := filepath.Join(env.DataDir, "staging", "download", "thrive_0.6.1_linux.7z")
	assert.NoFileExists(t, staged)
}

func TestPlayCommand_UnknownVersion(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	serveRelease(t, env, []byte("x"), strings.Repeat("a", 64))

	_, err := run(t, "play", "--version", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRemoveCommand_NotInstalled(t *testing.T) {
	testutil.SetupTestEnv(t)

	_, err := run(t, "remove", "thrive_0.6.1_linux")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")
}

func TestConfigInit(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	out, err := run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, env.ConfigFile)
	assert.FileExists(t, env.ConfigFile)

	_, err = run(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "config", "init", "--force")
	require.NoError(t, err)

	// The written file loads back.
	out, err = run(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, env.DataDir)
}

func TestInvalidConfigIsReported(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	env.WriteConfig(t, `launcher = { log_lines = "lots" }`)

	_, err := run(t, "installed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_lines")
}

func TestDetectorFor(t *testing.T) {
	_, err := detectorFor("linux")
	assert.Error(t, err)
	_, err = detectorFor("beos/amd64")
	assert.Error(t, err)

	d, err := detectorFor("win32/x86_64")
	require.NoError(t, err)
	info, err := d.Detect(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "windows/amd64", info.Tag())
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 MiB", humanBytes(2<<20))
}
