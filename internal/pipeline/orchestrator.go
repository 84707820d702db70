package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/thrive-launcher/launcher/internal/catalog"
	"github.com/thrive-launcher/launcher/internal/launch"
	"github.com/thrive-launcher/launcher/internal/logging"
	"github.com/thrive-launcher/launcher/internal/release"
)

// ErrOperationInProgress is returned by Start while an attempt is in flight.
var ErrOperationInProgress = errors.New("another operation is in progress")

// DefaultEventBuffer is the capacity of the events channel.
const DefaultEventBuffer = 256

// CatalogSource supplies the version catalog for an attempt.
type CatalogSource interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
}

// StaticCatalog always returns the same catalog.
type StaticCatalog struct {
	C *catalog.Catalog
}

// Catalog returns the wrapped catalog.
func (s StaticCatalog) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	return s.C, nil
}

// LoaderCatalog loads the manifest from Source on every attempt.
type LoaderCatalog struct {
	Loader *catalog.Loader
	Source string
}

// Catalog loads and parses the manifest.
func (l LoaderCatalog) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	return l.Loader.Load(ctx, l.Source)
}

// Fetcher downloads a remote file to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, remoteURL, localPath string, onProgress release.ProgressFunc) (string, error)
}

// Verifier checks a file against its expected content hash.
type Verifier interface {
	Verify(path, expected string, onProgress release.VerifyProgressFunc) (bool, error)
}

// Installer is the install cache.
type Installer interface {
	Has(d catalog.PlatformDownload) bool
	PathFor(d catalog.PlatformDownload) string
	Install(d catalog.PlatformDownload, verifiedArchivePath string) (release.InstalledRelease, error)
}

// Locator finds the executable inside an installed release.
type Locator interface {
	Locate(installRoot string) (string, error)
}

// LaunchFunc starts the game process.
type LaunchFunc func(exePath, workingDir string, opts launch.Options) (*launch.Session, error)

// Options wires an Orchestrator to its collaborators.
type Options struct {
	Catalog    CatalogSource
	Platform   catalog.Platform
	Layout     release.Layout
	Downloader Fetcher
	Verifier   Verifier
	Cache      Installer
	Locator    Locator
	// ContentTypes accepted from the download server; nil disables the check.
	ContentTypes []string
	// Launch defaults to launch.Start.
	Launch   LaunchFunc
	LogLines int
	// EventBuffer defaults to DefaultEventBuffer.
	EventBuffer int
	Logger      logging.Logger
}

// Request selects what to play. An empty VersionID means the recommended
// stable version.
type Request struct {
	VersionID string
}

// Orchestrator runs at most one play attempt at a time.
type Orchestrator struct {
	opts   Options
	logger logging.Logger
	events chan Event

	// emitMu keeps an attempt's terminal event ahead of the next attempt's
	// first event.
	emitMu sync.Mutex

	mu      sync.Mutex
	current *Attempt
	state   State
	session *launch.Session
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Launch == nil {
		opts.Launch = launch.Start
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	return &Orchestrator{
		opts:   opts,
		logger: logging.OrNoop(opts.Logger),
		events: make(chan Event, opts.EventBuffer),
		state:  StateIdle,
	}
}

// Events returns the channel all attempts report on.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// State returns the state of the current or last attempt.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns the last launch session, or nil.
func (o *Orchestrator) Session() *launch.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Dismiss discards the last launch session once its process has exited.
// It reports false while the process is still running.
func (o *Orchestrator) Dismiss() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return true
	}
	if _, exited := o.session.ExitCode(); !exited {
		return false
	}
	o.session = nil
	return true
}

// Start claims the operation slot and runs a new attempt in the background.
// ctx bounds the attempt: canceling it aborts a download and stops event
// delivery, but never kills a running game.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Attempt, error) {
	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return nil, ErrOperationInProgress
	}
	a := &Attempt{
		id:      uuid.New(),
		request: req,
		ctx:     ctx,
		done:    make(chan struct{}),
	}
	o.current = a
	o.session = nil
	o.mu.Unlock()

	o.logger.Info("play attempt started", "attempt", a.id, "version", req.VersionID)
	go o.run(a)
	return a, nil
}

// Cancel aborts the current download. It has no effect in any other state.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.state != StateDownloading || o.current.cancelDownload == nil {
		return false
	}
	o.current.cancelDownload()
	return true
}

// transition records a non-terminal state change and reports it.
func (o *Orchestrator) transition(a *Attempt, to State) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()

	o.logger.Debug("state changed", "attempt", a.id, "from", from, "to", to)
	o.sendReliable(a, StateChanged{AttemptID: a.id, From: from, To: to})
}

// finish ends the attempt: the slot is cleared before the terminal event is
// sent so a consumer reacting to it can start the next attempt.
func (o *Orchestrator) finish(a *Attempt, to State, failure *Failure) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	from := o.state
	o.state = to
	o.current = nil
	o.mu.Unlock()

	a.mu.Lock()
	a.state = to
	a.failure = failure
	a.mu.Unlock()

	if failure != nil {
		o.logger.Warn("play attempt ended", "attempt", a.id, "state", to, "reason", failure.Reason, "error", failure.Err)
	} else {
		o.logger.Info("play attempt ended", "attempt", a.id, "state", to)
	}

	o.sendReliable(a, StateChanged{AttemptID: a.id, From: from, To: to, Failure: failure})
	close(a.done)
}

func (o *Orchestrator) sendReliable(a *Attempt, ev Event) {
	select {
	case o.events <- ev:
	case <-a.ctx.Done():
	}
}

// sendLossy drops ev when the consumer is behind.
func (o *Orchestrator) sendLossy(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}

func (o *Orchestrator) fail(a *Attempt, state State, err error) {
	f := newFailure(state, err)
	if f.Reason == ReasonCanceled {
		o.finish(a, StateIdle, f)
		return
	}
	o.finish(a, StateError, f)
}

func (o *Orchestrator) run(a *Attempt) {
	o.transition(a, StateResolving)
	d, err := o.resolve(a)
	if err != nil {
		o.fail(a, StateResolving, err)
		return
	}
	a.setDownload(d)

	if o.opts.Cache.Has(d) {
		o.logger.Info("release already installed", "folder", d.FolderName)
	} else if !o.acquire(a, d) {
		return
	}

	o.transition(a, StateLocating)
	exePath, err := o.opts.Locator.Locate(o.opts.Cache.PathFor(d))
	if err != nil {
		o.fail(a, StateLocating, err)
		return
	}

	o.transition(a, StateLaunching)
	session, err := o.opts.Launch(exePath, "", launch.Options{
		Capacity: o.opts.LogLines,
		Logger:   o.logger,
		OnLine: func(l launch.Line) {
			o.sendLossy(OutputLine{AttemptID: a.id, Line: l})
		},
	})
	if err != nil {
		o.fail(a, StateLaunching, err)
		return
	}

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()

	o.transition(a, StateRunning)
	code, err := session.Wait()
	if err != nil {
		o.logger.Warn("game output incomplete", "attempt", a.id, "error", err)
	}
	o.sendReliable(a, Exited{AttemptID: a.id, SessionID: session.ID(), Code: code})
	o.finish(a, StateFinished, nil)
}

func (o *Orchestrator) resolve(a *Attempt) (catalog.PlatformDownload, error) {
	cat, err := o.opts.Catalog.Catalog(a.ctx)
	if err != nil {
		if a.ctx.Err() != nil {
			return catalog.PlatformDownload{}, fmt.Errorf("%w: %w", release.ErrCanceled, err)
		}
		return catalog.PlatformDownload{}, err
	}

	var version catalog.Version
	if a.request.VersionID != "" {
		version, err = cat.VersionByID(a.request.VersionID)
	} else {
		version, err = cat.Recommended()
	}
	if err != nil {
		return catalog.PlatformDownload{}, err
	}

	return cat.DownloadFor(version, o.opts.Platform)
}

// acquire downloads, verifies and installs d. It reports false after
// finishing the attempt itself.
func (o *Orchestrator) acquire(a *Attempt, d catalog.PlatformDownload) bool {
	staged := o.opts.Layout.StagingPath(d.FileName)

	if _, err := os.Stat(staged); err == nil {
		o.logger.Info("using staged archive", "path", staged)
	} else {
		o.transition(a, StateDownloading)
		if err := o.download(a, d, staged); err != nil {
			o.fail(a, StateDownloading, err)
			return false
		}
	}

	o.transition(a, StateVerifying)
	ok, err := o.opts.Verifier.Verify(staged, d.Hash, func(percent float64) {
		o.sendLossy(VerifyProgress{AttemptID: a.id, Percent: percent})
	})
	if err == nil && !ok {
		err = fmt.Errorf("%w: %s", release.ErrHashMismatch, d.FileName)
	}
	if err != nil {
		if rmErr := os.Remove(staged); rmErr != nil && !os.IsNotExist(rmErr) {
			o.logger.Warn("failed to remove archive", "path", staged, "error", rmErr)
		}
		o.fail(a, StateVerifying, err)
		return false
	}

	o.transition(a, StateInstalling)
	if _, err := o.opts.Cache.Install(d, staged); err != nil {
		o.fail(a, StateInstalling, err)
		return false
	}
	return true
}

func (o *Orchestrator) download(a *Attempt, d catalog.PlatformDownload, staged string) error {
	if err := os.MkdirAll(o.opts.Layout.StagingDir(), 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	o.mu.Lock()
	a.cancelDownload = cancel
	o.mu.Unlock()

	contentType, err := o.opts.Downloader.Fetch(ctx, d.URL, staged, func(received, total int64) {
		o.sendLossy(DownloadProgress{AttemptID: a.id, Received: received, Total: total})
	})

	o.mu.Lock()
	a.cancelDownload = nil
	o.mu.Unlock()

	if err != nil {
		return err
	}
	// A Cancel that landed after the transfer completed still cancels.
	if ctx.Err() != nil {
		os.Remove(staged)
		return fmt.Errorf("%w: %w", release.ErrCanceled, ctx.Err())
	}

	if o.opts.ContentTypes != nil {
		if err := release.CheckContentType(contentType, o.opts.ContentTypes); err != nil {
			os.Remove(staged)
			return err
		}
	}
	return nil
}

// Attempt is one play request.
type Attempt struct {
	id      uuid.UUID
	request Request
	ctx     context.Context
	done    chan struct{}

	// guarded by Orchestrator.mu
	cancelDownload context.CancelFunc

	mu       sync.Mutex
	download catalog.PlatformDownload
	state    State
	failure  *Failure
}

// ID returns the attempt id carried by its events.
func (a *Attempt) ID() uuid.UUID {
	return a.id
}

// Request returns what was asked for.
func (a *Attempt) Request() Request {
	return a.request
}

// Download returns the record resolved for the attempt. It is the zero value
// until resolution succeeds.
func (a *Attempt) Download() catalog.PlatformDownload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.download
}

func (a *Attempt) setDownload(d catalog.PlatformDownload) {
	a.mu.Lock()
	a.download = d
	a.mu.Unlock()
}

// Done is closed when the attempt reaches Finished, Error or Idle.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt ends and returns its final state. The
// failure is nil for Finished.
func (a *Attempt) Wait() (State, *Failure) {
	<-a.done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.failure
}
