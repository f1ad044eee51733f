// Package job implements a single cooperatively cancellable generation job.
//
// A Job wraps one call to the generation service. It runs on its own goroutine,
// reports strictly increasing progress events tagged with its index and batch
// generation, and finishes with exactly one terminal event (succeeded or failed)
// unless it observes cancellation first, in which case it acknowledges the
// cancellation and reports nothing else.
//
// Cancellation is a polled flag, never a forced interruption: latency is bounded
// by the pacing poll interval while waiting, and by the service call duration
// while a call is in flight.
package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/tryon/internal/genai"
)

// State is the lifecycle state of a job.
type State int

const (
	// StatePending means the job has not been started yet.
	StatePending State = iota
	// StateRunning means the job goroutine is executing.
	StateRunning
	// StateCancelled means cancellation was observed before a terminal point.
	StateCancelled
	// StateSucceeded means an artifact was written.
	StateSucceeded
	// StateFailed means the job stopped with an error.
	StateFailed
)

var stateNames = map[State]string{
	StatePending:   "pending",
	StateRunning:   "running",
	StateCancelled: "cancelled",
	StateSucceeded: "succeeded",
	StateFailed:    "failed",
}

// String returns the lowercase state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no further transitions can happen from s.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateSucceeded || s == StateFailed
}

// Progress checkpoints reported by a running job.
const (
	ProgressCredential = 10
	ProgressConfigured = 30
	ProgressInputs     = 50
	ProgressRequest    = 60
	ProgressResponse   = 80
	ProgressDone       = 100
)

// EventKind identifies what a job is reporting.
type EventKind int

const (
	// EventProgress carries a new progress percentage.
	EventProgress EventKind = iota
	// EventSucceeded is the success terminal event.
	EventSucceeded
	// EventFailed is the failure terminal event.
	EventFailed
	// EventCancelled acknowledges that the job stopped because of cancellation.
	EventCancelled
)

// String returns a short name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is a single report from a job to its owner.
type Event struct {
	Generation  uint64
	Index       int
	Kind        EventKind
	Percent     int
	ArtifactRef string
	ErrorDetail string
	Err         error
	Time        time.Time
}

// IsTerminal reports whether the event ends the job.
func (e Event) IsTerminal() bool {
	return e.Kind != EventProgress
}

// Reporter receives job events. It is called from the job goroutine.
type Reporter func(Event)

// Params are the per-job inputs.
type Params struct {
	Index        int
	Generation   uint64
	RequestID    string
	Prompt       string
	PersonPath   string
	ClothingPath string
	Temperature  float64
	APIKey       string

	// Sampling overrides passed through to the generator.
	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// GeneratorFactory configures a generation client for the given credential.
type GeneratorFactory func(apiKey string) (genai.Generator, error)

// InputLoader loads a conditioning image.
type InputLoader interface {
	Load(ctx context.Context, path string) (genai.Image, error)
}

// ArtifactStore persists an artifact and returns its location.
type ArtifactStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Pacing controls the interruptible wait before invoking the service.
type Pacing struct {
	Delay time.Duration
	Poll  time.Duration
}

// DefaultPacing waits two seconds, checking for cancellation every 100ms.
func DefaultPacing() Pacing {
	return Pacing{Delay: 2 * time.Second, Poll: 100 * time.Millisecond}
}

// Deps are the collaborators a job needs.
type Deps struct {
	Generators GeneratorFactory
	Loader     InputLoader
	Store      ArtifactStore
	Pacing     Pacing
	Logger     zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a point-in-time copy of a job's state.
type Snapshot struct {
	Index       int
	Generation  uint64
	State       State
	Progress    int
	Temperature float64
	ArtifactRef string
	ErrorDetail string
	StartedAt   time.Time
	FinishedAt  time.Time
}
