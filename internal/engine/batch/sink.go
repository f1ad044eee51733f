package batch

import (
	"time"

	"github.com/rs/zerolog"
)

// OutcomeKind distinguishes the two user-visible terminal outcomes.
type OutcomeKind int

const (
	// OutcomeSucceeded carries an artifact reference.
	OutcomeSucceeded OutcomeKind = iota
	// OutcomeFailed carries an error detail.
	OutcomeFailed
)

// String returns the outcome name.
func (k OutcomeKind) String() string {
	if k == OutcomeSucceeded {
		return "succeeded"
	}
	return "failed"
}

// Outcome is the terminal result of one job. Cancellation is not an outcome.
type Outcome struct {
	Kind        OutcomeKind
	ArtifactRef string
	ErrorDetail string
	Err         error
}

// Success reports whether the job produced an artifact.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeSucceeded
}

// BatchInfo describes a batch that has just started.
type BatchInfo struct {
	ID           string
	Generation   uint64
	Size         int
	Stagger      time.Duration
	Prompt       string
	Temperatures []float64
	StartedAt    time.Time
}

// Summary describes a finished batch.
type Summary struct {
	BatchID       string
	Generation    uint64
	Size          int
	Succeeded     int
	Failed        int
	Cancelled     int
	UserCancelled bool
	Slots         []Slot
	Elapsed       time.Duration
}

// Artifacts returns the artifact references in index order.
func (s Summary) Artifacts() []string {
	var refs []string
	for _, slot := range s.Slots {
		if slot.ArtifactRef != "" {
			refs = append(refs, slot.ArtifactRef)
		}
	}
	return refs
}

// ProgressSink observes batch starts and per-job progress.
type ProgressSink interface {
	OnBatchStarted(info BatchInfo)
	OnProgress(index, percent int)
}

// ResultSink observes terminal outcomes and batch completion.
type ResultSink interface {
	OnTerminal(index int, outcome Outcome)
	OnBatchComplete(summary Summary)
}

// Sink is the full observer surface. Every call is made from the controller
// loop, so implementations must not block on, or call back into, the
// controller's loop-bound methods.
type Sink interface {
	ProgressSink
	ResultSink
}

// NopSink ignores every notification.
type NopSink struct{}

func (NopSink) OnBatchStarted(BatchInfo) {}
func (NopSink) OnProgress(int, int) {}
func (NopSink) OnTerminal(int, Outcome) {}
func (NopSink) OnBatchComplete(Summary) {}

// MultiSink fans notifications out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnBatchStarted(info BatchInfo) {
	for _, s := range m {
		s.OnBatchStarted(info)
	}
}

func (m MultiSink) OnProgress(index, percent int) {
	for _, s := range m {
		s.OnProgress(index, percent)
	}
}

func (m MultiSink) OnTerminal(index int, outcome Outcome) {
	for _, s := range m {
		s.OnTerminal(index, outcome)
	}
}

func (m MultiSink) OnBatchComplete(summary Summary) {
	for _, s := range m {
		s.OnBatchComplete(summary)
	}
}

// LogSink renders notifications as structured log lines.
type LogSink struct {
	Logger zerolog.Logger
}

// NewLogSink returns a LogSink tagged with the batch component.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{Logger: logger.With().Str("component", "batch_sink").Logger()}
}

func (s *LogSink) OnBatchStarted(info BatchInfo) {
	s.Logger.Info().
		Str("batch_id", info.ID).
		Uint64("generation", info.Generation).
		Int("size", info.Size).
		Dur("stagger", info.Stagger).
		Msg("batch started")
}

func (s *LogSink) OnProgress(index, percent int) {
	s.Logger.Debug().Int("index", index).Int("percent", percent).Msg("job progress")
}

func (s *LogSink) OnTerminal(index int, outcome Outcome) {
	if outcome.Success() {
		s.Logger.Info().Int("index", index).Str("artifact", outcome.ArtifactRef).Msg("job succeeded")
		return
	}
	s.Logger.Warn().Int("index", index).Str("error", outcome.ErrorDetail).Msg("job failed")
}

func (s *LogSink) OnBatchComplete(summary Summary) {
	s.Logger.Info().
		Str("batch_id", summary.BatchID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("cancelled", summary.Cancelled).
		Bool("user_cancelled", summary.UserCancelled).
		Dur("elapsed", summary.Elapsed).
		Msg("batch complete")
}
