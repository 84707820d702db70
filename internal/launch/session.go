// Package launch runs an installed release as a child process and keeps a
// bounded, live log of its output.
package launch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thrive-launcher/launcher/internal/logging"
)

// DefaultCapacity is the number of output lines a session retains.
const DefaultCapacity = 1000

// MaxLineLength is the longest single log line, in bytes.
const MaxLineLength = 64 * 1024

const (
	startedMarker = "Process Started"
	stderrPrefix  = "ERROR: "
)

// ErrSpawnFailed is returned when the executable cannot be started.
var ErrSpawnFailed = errors.New("failed to start process")

// Stream identifies where a line came from.
type Stream int

const (
	// StreamSystem lines are written by the session itself.
	StreamSystem Stream = iota
	StreamStdout
	StreamStderr
)

func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "system"
	}
}

// Line is one entry of the session log.
type Line struct {
	// Seq numbers lines from 1 in arrival order, including evicted ones.
	Seq    uint64
	Stream Stream
	Text   string
	Time   time.Time
}

// Options configures a Session.
type Options struct {
	// Capacity bounds the retained log; defaults to DefaultCapacity.
	Capacity int
	Clock    Clock
	Logger   logging.Logger
	// OnLine observes every line in log order. It runs on a reader
	// goroutine and must not block for long.
	OnLine func(Line)
	Args   []string
	// Env replaces the child's environment when non-nil.
	Env []string
}

// Session is one running (or finished) child process.
type Session struct {
	id       uuid.UUID
	exePath  string
	workDir  string
	cmd      *exec.Cmd
	clock    Clock
	logger   logging.Logger
	onLine   func(Line)
	started  time.Time
	emitMu   sync.Mutex // orders append+OnLine across readers
	mu       sync.Mutex
	log      *Ring[Line]
	seq      uint64
	finished time.Time
	exitCode int
	exited   bool
	waitErr  error
	done     chan struct{}
}

// Start spawns exePath. An empty workingDir means the executable's directory.
//
// The process is never killed by the session; it runs until it exits on its
// own or the launcher itself exits.
func Start(exePath, workingDir string, opts Options) (*Session, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if workingDir == "" {
		workingDir = filepath.Dir(exePath)
	}

	cmd := exec.Command(exePath, opts.Args...)
	cmd.Dir = workingDir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	s := &Session{
		id:      uuid.New(),
		exePath: exePath,
		workDir: workingDir,
		cmd:     cmd,
		clock:   opts.Clock,
		logger:  logging.OrNoop(opts.Logger),
		onLine:  opts.OnLine,
		log:     NewRing[Line](opts.Capacity),
		done:    make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, exePath, err)
	}
	s.started = s.clock.Now()
	s.logger.Info("process started", "session", s.id, "exe", exePath, "pid", cmd.Process.Pid)
	s.append(StreamSystem, startedMarker)

	go s.run(stdout, stderr)
	return s, nil
}

// run drains both pipes, then reaps the process.
func (s *Session) run(stdout, stderr io.Reader) {
	var g errgroup.Group
	g.Go(func() error { return s.readLines(stdout, StreamStdout) })
	g.Go(func() error { return s.readLines(stderr, StreamStderr) })
	readErr := g.Wait()

	waitErr := s.cmd.Wait()

	code := 0
	if s.cmd.ProcessState != nil {
		code = s.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		s.logger.Error("wait for process", "session", s.id, "error", waitErr)
	} else {
		waitErr = nil
	}
	if waitErr == nil && readErr != nil {
		waitErr = readErr
	}

	if code == 0 {
		s.append(StreamSystem, "process exited normally")
	} else {
		s.append(StreamSystem, fmt.Sprintf("process exited with code %d", code))
	}

	s.mu.Lock()
	s.exitCode = code
	s.exited = true
	s.waitErr = waitErr
	s.finished = s.clock.Now()
	s.mu.Unlock()

	s.logger.Info("process exited", "session", s.id, "code", code)
	close(s.done)
}

// readLines splits r into log lines. Lines longer than MaxLineLength are
// logged in MaxLineLength pieces.
func (s *Session) readLines(r io.Reader, stream Stream) error {
	br := bufio.NewReaderSize(r, MaxLineLength)
	for {
		chunk, _, err := br.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		}

		text := string(chunk)
		if stream == StreamStderr {
			text = stderrPrefix + text
		}
		s.append(stream, text)
	}
}

func (s *Session) append(stream Stream, text string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.seq++
	line := Line{Seq: s.seq, Stream: stream, Text: text, Time: s.clock.Now()}
	s.log.Push(line)
	s.mu.Unlock()

	if s.onLine != nil {
		s.onLine(line)
	}
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// ExecutablePath returns the path the session was started with.
func (s *Session) ExecutablePath() string {
	return s.exePath
}

// WorkingDir returns the child's working directory.
func (s *Session) WorkingDir() string {
	return s.workDir
}

// StartedAt returns when the process was spawned.
func (s *Session) StartedAt() time.Time {
	return s.started
}

// FinishedAt returns when the process exited; ok is false while running.
func (s *Session) FinishedAt() (t time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, s.exited
}

// Lines returns a snapshot of the retained log, oldest first.
func (s *Session) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Items()
}

// Evicted returns how many lines dropped out of the log.
func (s *Session) Evicted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Evicted()
}

// ExitCode returns the exit code; ok is false while the process runs.
func (s *Session) ExitCode() (code int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exited
}

// Done is closed once the process has exited and all output is logged.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the process exits and returns its exit code. The error
// reports failures reaping the process or reading its output, not a
// non-zero exit.
func (s *Session) Wait() (int, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.waitErr
}
