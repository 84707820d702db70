package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/thrive-launcher/launcher/internal/catalog"
	"github.com/thrive-launcher/launcher/internal/launch"
	"github.com/thrive-launcher/launcher/internal/release"
)

// TestHelperProcess stands in for the game executable.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Println("Thrive is running")
	os.Exit(0)
}

var linuxAMD64 = catalog.Platform{OS: "linux", Arch: "amd64"}

type countingInstaller struct {
	*release.Cache
	installs atomic.Int32
}

func (c *countingInstaller) Install(d catalog.PlatformDownload, path string) (release.InstalledRelease, error) {
	c.installs.Add(1)
	return c.Cache.Install(d, path)
}

type fixture struct {
	t           *testing.T
	srv         *httptest.Server
	archive     []byte
	hash        string
	contentType string
	requests    atomic.Int32
	// block, when set, stalls the download after the first chunk.
	block   atomic.Bool
	layout  release.Layout
	cache   *countingInstaller
	orch    *Orchestrator
	mu      sync.Mutex
	started []string
}

func zipArchive(t *testing.T, files map[string]string) []byte {
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
	return buf.Bytes()
}

func hashOf(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()

	f := &fixture{
		t:           t,
		archive:     zipArchive(t, files),
		contentType: "application/x-7z-compressed",
		layout:      release.Layout{DataDir: t.TempDir()},
	}
	f.hash = hashOf(f.archive)

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		body, contentType := f.archive, f.contentType
		f.mu.Unlock()

		w.Header().Set("Content-Type", contentType)
		if f.block.Load() {
			w.Header().Set("Content-Length", strconv.Itoa(1<<20))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(make([]byte, 4096))
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(f.srv.Close)

	f.cache = &countingInstaller{Cache: release.NewCache(f.layout.InstallDir(), release.CacheOptions{})}
	return f
}

// serve replaces what the server returns.
func (f *fixture) serve(archive []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if archive != nil {
		f.archive = archive
		f.hash = hashOf(archive)
	}
	if contentType != "" {
		f.contentType = contentType
	}
}

func (f *fixture) manifest(hash string) *catalog.Catalog {
	f.t.Helper()
	doc := fmt.Sprintf(`{
	  "versions": [
	    {"id": "11", "releaseNum": "0.6.0", "stable": true, "downloads": [
	      {"os": "linux", "arch": "amd64", "url": "%[1]s/thrive_0.6.0_linux.7z", "hash": "00", "folderName": "thrive_0.6.0_linux"}
	    ]},
	    {"id": "12", "releaseNum": "0.6.1", "stable": true, "downloads": [
	      {"os": "linux", "arch": "amd64", "url": "%[1]s/thrive_0.6.1_linux.7z",
	       "fileName": "thrive_0.6.1_linux.7z", "hash": "%[2]s", "folderName": "thrive_0.6.1_linux"}
	    ]}
	  ]
	}`, f.srv.URL, hash)
	cat, err := catalog.Parse([]byte(doc))
	require.NoError(f.t, err)
	return cat
}

func (f *fixture) launch(exePath, workingDir string, opts launch.Options) (*launch.Session, error) {
	f.mu.Lock()
	f.started = append(f.started, exePath)
	f.mu.Unlock()

	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	opts.Args = []string{"-test.run=^TestHelperProcess$", "--"}
	opts.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return launch.Start(exe, "", opts)
}

func (f *fixture) launched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fixture) orchestrator(hash string) *Orchestrator {
	f.orch = New(Options{
		Catalog:      StaticCatalog{C: f.manifest(hash)},
		Platform:     linuxAMD64,
		Layout:       f.layout,
		Downloader:   release.NewDownloader(release.DownloaderOptions{Retries: 0}),
		Verifier:     release.NewVerifier(),
		Cache:        f.cache,
		Locator:      release.NewLocator("Thrive", "", "linux"),
		ContentTypes: release.DefaultContentTypes,
		Launch:       f.launch,
	})
	return f.orch
}

func (f *fixture) stagedPath() string {
	return f.layout.StagingPath("thrive_0.6.1_linux.7z")
}

func waitAttempt(t *testing.T, a *Attempt) (State, *Failure) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("attempt did not finish")
	}
	return a.Wait()
}

// drain returns the events already buffered.
func drain(o *Orchestrator) []Event {
	var out []Event
	for {
		select {
		case ev := <-o.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func states(events []Event) []State {
	var out []State
	for _, ev := range events {
		if sc, ok := ev.(StateChanged); ok {
			out = append(out, sc.To)
		}
	}
	return out
}

func TestOrchestrator_PlaysRecommendedRelease(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	require.Nil(t, failure)
	assert.Equal(t, StateFinished, state)
	assert.Equal(t, "12", a.Download().VersionID)

	events := drain(o)
	assert.Equal(t, []State{
		StateResolving, StateDownloading, StateVerifying, StateInstalling,
		StateLocating, StateLaunching, StateRunning, StateFinished,
	}, states(events))

	var exited *Exited
	var sawDownload, sawVerify bool
	for _, ev := range events {
		switch e := ev.(type) {
		case Exited:
			exited = &e
		case DownloadProgress:
			sawDownload = true
			assert.Equal(t, int64(len(f.archive)), e.Total)
		case VerifyProgress:
			sawVerify = true
		}
		assert.Equal(t, a.ID(), ev.Attempt())
	}
	require.NotNil(t, exited)
	assert.Equal(t, 0, exited.Code)
	assert.True(t, sawDownload)
	assert.True(t, sawVerify)

	installDir := filepath.Join(f.layout.InstallDir(), "thrive_0.6.1_linux")
	assert.DirExists(t, installDir)
	assert.Equal(t, []string{filepath.Join(installDir, "bin", "Thrive")}, f.launched())

	session := o.Session()
	require.NotNil(t, session)
	assert.Equal(t, exited.SessionID, session.ID())
	lines := session.Lines()
	require.NotEmpty(t, lines)
	assert.Equal(t, "Process Started", lines[0].Text)
	assert.Equal(t, StateFinished, o.State())

	assert.True(t, o.Dismiss())
	assert.Nil(t, o.Session())
}

func TestOrchestrator_SelectedVersion(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)

	a, err := o.Start(context.Background(), Request{VersionID: "missing"})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	assert.Equal(t, StateError, state)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonVersionNotFound, failure.Reason)
	assert.Equal(t, StateResolving, failure.State)
	assert.Zero(t, f.requests.Load())
}

func TestOrchestrator_HashMismatch(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	wrong := hashOf([]byte("something else"))
	o := f.orchestrator(wrong)

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	assert.Equal(t, StateError, state)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonHashMismatch, failure.Reason)
	assert.ErrorIs(t, failure, release.ErrHashMismatch)
	assert.False(t, failure.Canceled())

	assert.NoFileExists(t, f.stagedPath())
	assert.Zero(t, f.cache.installs.Load(), "install must not run after a failed verification")
	assert.Empty(t, f.launched())
	assert.NoDirExists(t, filepath.Join(f.layout.InstallDir(), "thrive_0.6.1_linux"))
}

func TestOrchestrator_MissingBinDirectory(t *testing.T) {
	f := newFixture(t, map[string]string{"Thrive": "game", "data/readme.txt": "hi"})
	o := f.orchestrator(f.hash)

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	assert.Equal(t, StateError, state)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonBinDirectoryMissing, failure.Reason)
	assert.Equal(t, StateLocating, failure.State)
	assert.Empty(t, f.launched())
	assert.Nil(t, o.Session())
}

func TestOrchestrator_ExtractionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.serve([]byte("not an archive"), "")
	o := f.orchestrator(f.hash)

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	assert.Equal(t, StateError, state)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonExtractionFailed, failure.Reason)
	assert.NoFileExists(t, f.stagedPath())
	assert.False(t, f.cache.Has(a.Download()))
}

func TestOrchestrator_UnexpectedContentType(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	f.serve(nil, "text/html; charset=utf-8")
	o := f.orchestrator(f.hash)

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	assert.Equal(t, StateError, state)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonUnexpectedContentType, failure.Reason)
	assert.NoFileExists(t, f.stagedPath())
}

func TestOrchestrator_NoDownloadForPlatform(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)
	o.opts.Platform = catalog.Platform{OS: "windows", Arch: "amd64"}

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	_, failure := waitAttempt(t, a)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonNoDownloadForPlatform, failure.Reason)
	assert.NotEmpty(t, failure.Message())
}

func TestOrchestrator_CacheHitSkipsAcquisition(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)

	binDir := filepath.Join(f.layout.InstallDir(), "thrive_0.6.1_linux", "bin")
	require.NoError(t, os.MkdirAll(binDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "Thrive"), []byte("game"), 0755))

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	require.Nil(t, failure)
	assert.Equal(t, StateFinished, state)
	assert.Zero(t, f.requests.Load())
	assert.Zero(t, f.cache.installs.Load())
	assert.Equal(t, []State{StateResolving, StateLocating, StateLaunching, StateRunning, StateFinished}, states(drain(o)))
}

func TestOrchestrator_StagedArchiveIsStillVerified(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)

	require.NoError(t, os.MkdirAll(f.layout.StagingDir(), 0755))
	require.NoError(t, os.WriteFile(f.stagedPath(), []byte("stale partial download"), 0644))

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	_, failure := waitAttempt(t, a)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonHashMismatch, failure.Reason)
	assert.Zero(t, f.requests.Load(), "a staged archive skips the download")
	assert.NoFileExists(t, f.stagedPath())
	assert.NotContains(t, states(drain(o)), StateDownloading)

	// The retry downloads a fresh copy.
	a, err = o.Start(context.Background(), Request{})
	require.NoError(t, err)
	state, failure := waitAttempt(t, a)
	require.Nil(t, failure)
	assert.Equal(t, StateFinished, state)
	assert.Equal(t, int32(1), f.requests.Load())
}

// startBlockedDownload starts an attempt and waits until bytes are flowing.
func startBlockedDownload(t *testing.T, f *fixture, o *Orchestrator) *Attempt {
	t.Helper()
	f.block.Store(true)

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	deadline := time.After(30 * time.Second)
	for {
		select {
		case ev := <-o.Events():
			if _, ok := ev.(DownloadProgress); ok {
				return a
			}
		case <-deadline:
			t.Fatal("download never reported progress")
		}
	}
}

func TestOrchestrator_CancelDownload(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)

	assert.False(t, o.Cancel(), "nothing to cancel while idle")

	a := startBlockedDownload(t, f, o)
	assert.Equal(t, StateDownloading, o.State())
	assert.True(t, o.Cancel())

	state, failure := waitAttempt(t, a)
	assert.Equal(t, StateIdle, state)
	require.NotNil(t, failure)
	assert.True(t, failure.Canceled())
	assert.Equal(t, ReasonCanceled, failure.Reason)

	assert.NoFileExists(t, f.stagedPath())
	assert.NoFileExists(t, f.stagedPath()+".tmp")
	assert.Zero(t, f.cache.installs.Load())
	assert.Equal(t, StateIdle, o.State())

	// The slot is free again.
	f.block.Store(false)
	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)
	state, failure = waitAttempt(t, a)
	require.Nil(t, failure)
	assert.Equal(t, StateFinished, state)
}

// lateCancelFetcher completes the transfer and then asks the orchestrator to
// cancel, before the download step has moved on.
type lateCancelFetcher struct {
	Fetcher
	orch     *Orchestrator
	canceled atomic.Bool
}

func (l *lateCancelFetcher) Fetch(ctx context.Context, remoteURL, localPath string, onProgress release.ProgressFunc) (string, error) {
	contentType, err := l.Fetcher.Fetch(ctx, remoteURL, localPath, onProgress)
	l.canceled.Store(l.orch.Cancel())
	return contentType, err
}

func TestOrchestrator_CancelAfterTransferCompletes(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)
	fetcher := &lateCancelFetcher{Fetcher: o.opts.Downloader, orch: o}
	o.opts.Downloader = fetcher

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	require.True(t, fetcher.canceled.Load(), "Cancel should be accepted while downloading")
	assert.Equal(t, StateIdle, state)
	require.NotNil(t, failure)
	assert.Equal(t, ReasonCanceled, failure.Reason)
	assert.NoFileExists(t, f.stagedPath())
	assert.Zero(t, f.cache.installs.Load())
	assert.Empty(t, f.launched())
}

func TestOrchestrator_ManifestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)
	o.opts.Catalog = LoaderCatalog{
		Loader: catalog.NewLoader(catalog.LoaderOptions{}),
		Source: srv.URL + "/thrive_versions.json",
	}

	a, err := o.Start(context.Background(), Request{})
	require.NoError(t, err)

	state, failure := waitAttempt(t, a)
	assert.Equal(t, StateError, state)
	require.NotNil(t, failure)
	assert.Equal(t, StateResolving, failure.State)
	assert.Equal(t, ReasonCatalogUnavailable, failure.Reason)
	assert.Zero(t, f.requests.Load())
}

func TestOrchestrator_SingleFlight(t *testing.T) {
	f := newFixture(t, map[string]string{"bin/Thrive": "game"})
	o := f.orchestrator(f.hash)

	a := startBlockedDownload(t, f, o)

	_, err := o.Start(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrOperationInProgress)

	require.True(t, o.Cancel())
	waitAttempt(t, a)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ReasonNone},
		{"canceled", fmt.Errorf("%w: %w", release.ErrCanceled, context.Canceled), ReasonCanceled},
		{"malformed", fmt.Errorf("%w: bad json", catalog.ErrMalformedCatalog), ReasonMalformedCatalog},
		{"no_stable", catalog.ErrNoStableVersion, ReasonNoStableVersion},
		{"in_progress", release.ErrDownloadInProgress, ReasonDownloadInProgress},
		{"extraction", fmt.Errorf("%w: eof", release.ErrExtractionFailed), ReasonExtractionFailed},
		{"exe_missing", release.ErrExecutableMissing, ReasonExecutableMissing},
		{"spawn", launch.ErrSpawnFailed, ReasonSpawnFailed},
		{"failure", &Failure{Reason: ReasonHashMismatch}, ReasonHashMismatch},
		{"unknown", fmt.Errorf("disk on fire"), ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestNewFailure_DownloadErrorsAreTransport(t *testing.T) {
	f := newFailure(StateDownloading, fmt.Errorf("connection reset"))
	assert.Equal(t, ReasonTransport, f.Reason)

	f = newFailure(StateResolving, fmt.Errorf("fetch manifest: status 503"))
	assert.Equal(t, ReasonCatalogUnavailable, f.Reason)

	f = newFailure(StateResolving, fmt.Errorf("%w: eof", catalog.ErrMalformedCatalog))
	assert.Equal(t, ReasonMalformedCatalog, f.Reason)

	f = newFailure(StateInstalling, fmt.Errorf("connection reset"))
	assert.Equal(t, ReasonInternal, f.Reason)
}

func TestStateAndReasonStrings(t *testing.T) {
	assert.Equal(t, "downloading", StateDownloading.String())
	assert.Equal(t, "state(99)", State(99).String())
	assert.Equal(t, "hash-mismatch", ReasonHashMismatch.String())
	assert.Equal(t, "", ReasonNone.Message())
	for r := ReasonCanceled; r <= ReasonInternal; r++ {
		assert.NotEmpty(t, r.Message(), r.String())
	}
}

func TestDownloadProgress_Fraction(t *testing.T) {
	assert.Equal(t, 0.5, DownloadProgress{Received: 5, Total: 10}.Fraction())
	assert.Equal(t, -1.0, DownloadProgress{Received: 5, Total: -1}.Fraction())
}
