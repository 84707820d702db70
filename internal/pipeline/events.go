package pipeline

import (
	"github.com/google/uuid"

	"github.com/thrive-launcher/launcher/internal/launch"
)

// Event is delivered on Orchestrator.Events. The concrete types are
// StateChanged, DownloadProgress, VerifyProgress, OutputLine and Exited.
type Event interface {
	// Attempt returns the id of the attempt that produced the event.
	Attempt() uuid.UUID
}

// StateChanged reports a transition. Failure is set when To is StateError,
// or when To is StateIdle after a cancellation.
type StateChanged struct {
	AttemptID uuid.UUID
	From      State
	To        State
	Failure   *Failure
}

// DownloadProgress reports bytes received; Total is -1 when unknown.
type DownloadProgress struct {
	AttemptID uuid.UUID
	Received  int64
	Total     int64
}

// Fraction returns the completed fraction, or -1 when the total is unknown.
func (p DownloadProgress) Fraction() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Received) / float64(p.Total)
}

// VerifyProgress reports the percentage of the archive hashed so far.
type VerifyProgress struct {
	AttemptID uuid.UUID
	Percent   float64
}

// OutputLine is one line of game output.
type OutputLine struct {
	AttemptID uuid.UUID
	Line      launch.Line
}

// Exited reports the end of the game process.
type Exited struct {
	AttemptID uuid.UUID
	SessionID uuid.UUID
	Code      int
}

func (e StateChanged) Attempt() uuid.UUID     { return e.AttemptID }
func (e DownloadProgress) Attempt() uuid.UUID { return e.AttemptID }
func (e VerifyProgress) Attempt() uuid.UUID   { return e.AttemptID }
func (e OutputLine) Attempt() uuid.UUID       { return e.AttemptID }
func (e Exited) Attempt() uuid.UUID           { return e.AttemptID }
