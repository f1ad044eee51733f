package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/tryon/internal/genai"
	"github.com/rshade/tryon/internal/storage"
)

// Job executes one generation call.
type Job struct {
	params Params
	deps   Deps
	report Reporter
	logger zerolog.Logger

	cancelRequested atomic.Bool
	startOnce       sync.Once
	started         atomic.Bool
	done            chan struct{}

	// mu protects the fields below.
	mu          sync.Mutex
	state       State
	progress    int
	artifactRef string
	errorDetail string
	startedAt   time.Time
	finishedAt  time.Time
}

// New creates a pending job. report may be nil.
func New(params Params, deps Deps, report Reporter) *Job {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if report == nil {
		report = func(Event) {}
	}
	return &Job{
		params: params,
		deps:   deps,
		report: report,
		logger: deps.Logger.With().
			Int("index", params.Index).
			Uint64("generation", params.Generation).
			Logger(),
		done:  make(chan struct{}),
		state: StatePending,
	}
}

// Index returns the job's position in its batch.
func (j *Job) Index() int {
	return j.params.Index
}

// Generation returns the batch generation the job belongs to.
func (j *Job) Generation() uint64 {
	return j.params.Generation
}

// Start launches the job goroutine. Calls after the first are no-ops.
// ctx bounds the service call and storage write; it is not the cancel flag.
func (j *Job) Start(ctx context.Context) {
	j.startOnce.Do(func() {
		j.started.Store(true)
		go j.run(ctx)
	})
}

// Started reports whether Start has been called.
func (j *Job) Started() bool {
	return j.started.Load()
}

// Cancel requests cooperative cancellation. It is idempotent and never blocks.
func (j *Job) Cancel() {
	if j.cancelRequested.CompareAndSwap(false, true) {
		j.logger.Debug().Msg("cancel requested")
	}
}

// IsCancelled reports whether cancellation has been requested.
func (j *Job) IsCancelled() bool {
	return j.cancelRequested.Load()
}

// Done is closed when the job goroutine exits. It never closes for a job that
// was not started.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		Index:       j.params.Index,
		Generation:  j.params.Generation,
		State:       j.state,
		Progress:    j.progress,
		Temperature: j.params.Temperature,
		ArtifactRef: j.artifactRef,
		ErrorDetail: j.errorDetail,
		StartedAt:   j.startedAt,
		FinishedAt:  j.finishedAt,
	}
}

func (j *Job) run(ctx context.Context) {
	defer close(j.done)

	j.mu.Lock()
	j.state = StateRunning
	j.startedAt = j.deps.Now()
	j.mu.Unlock()
	j.logger.Debug().Float64("temperature", j.params.Temperature).Msg("job started")

	if j.stopRequested(ctx) {
		j.acknowledgeCancel()
		return
	}
	if strings.TrimSpace(j.params.APIKey) == "" {
		j.fail(ErrMissingCredential)
		return
	}
	j.advance(ProgressCredential)

	if j.stopRequested(ctx) {
		j.acknowledgeCancel()
		return
	}
	gen, err := j.deps.Generators(j.params.APIKey)
	if err != nil {
		j.fail(fmt.Errorf("%w: configure client: %w", ErrServiceInvocation, err))
		return
	}
	j.advance(ProgressConfigured)

	if j.stopRequested(ctx) {
		j.acknowledgeCancel()
		return
	}
	person, err := j.deps.Loader.Load(ctx, j.params.PersonPath)
	if err != nil {
		j.failUnlessCancelled(ctx, fmt.Errorf("%w: person image: %w", ErrInputUnavailable, err))
		return
	}
	clothing, err := j.deps.Loader.Load(ctx, j.params.ClothingPath)
	if err != nil {
		j.failUnlessCancelled(ctx, fmt.Errorf("%w: clothing image: %w", ErrInputUnavailable, err))
		return
	}
	j.advance(ProgressInputs)

	if j.stopRequested(ctx) {
		j.acknowledgeCancel()
		return
	}
	req := genai.Request{
		RequestID:       j.params.RequestID,
		Prompt:          j.params.Prompt,
		Images:          []genai.Image{person, clothing},
		Temperature:     j.params.Temperature,
		TopK:            j.params.TopK,
		TopP:            j.params.TopP,
		MaxOutputTokens: j.params.MaxOutputTokens,
	}
	j.advance(ProgressRequest)

	if !Pace(ctx, j.deps.Pacing.Delay, j.deps.Pacing.Poll, j.IsCancelled) || j.stopRequested(ctx) {
		j.acknowledgeCancel()
		return
	}

	artifact, err := gen.Generate(ctx, req)
	if j.stopRequested(ctx) {
		j.acknowledgeCancel()
		return
	}
	if err != nil {
		j.fail(fmt.Errorf("%w: %w", ErrServiceInvocation, err))
		return
	}
	j.advance(ProgressResponse)

	if artifact.Empty() {
		j.fail(ErrNoArtifactReturned)
		return
	}
	for _, text := range artifact.Texts {
		if j.IsCancelled() {
			j.acknowledgeCancel()
			return
		}
		j.logger.Debug().Str("text", text).Msg("service text part")
	}

	if j.stopRequested(ctx) {
		j.acknowledgeCancel()
		return
	}
	key := storage.ArtifactKey(j.params.Index, j.deps.Now(), genai.ExtensionForMIME(artifact.MIME))
	ref, err := j.deps.Store.Write(ctx, key, artifact.Data)
	if err != nil {
		j.failUnlessCancelled(ctx, fmt.Errorf("%w: %w", ErrArtifactWrite, err))
		return
	}

	j.advance(ProgressDone)
	j.succeed(ref)
}

// stopRequested is checked at every yield point.
func (j *Job) stopRequested(ctx context.Context) bool {
	return j.IsCancelled() || ctx.Err() != nil
}

func (j *Job) advance(percent int) {
	j.mu.Lock()
	if j.state != StateRunning || percent <= j.progress {
		j.mu.Unlock()
		return
	}
	j.progress = percent
	j.mu.Unlock()

	j.emit(Event{Kind: EventProgress, Percent: percent})
}

func (j *Job) succeed(ref string) {
	if !j.finish(StateSucceeded, ref, "") {
		return
	}
	j.logger.Info().Str("artifact", ref).Msg("job succeeded")
	j.emit(Event{Kind: EventSucceeded, Percent: ProgressDone, ArtifactRef: ref})
}

func (j *Job) fail(err error) {
	detail := err.Error()
	if !j.finish(StateFailed, "", detail) {
		return
	}
	j.logger.Warn().Err(err).Msg("job failed")
	j.emit(Event{Kind: EventFailed, ErrorDetail: detail, Err: err})
}

// failUnlessCancelled keeps cancellation from surfacing as a failure when a
// collaborator returns because ctx was cancelled.
func (j *Job) failUnlessCancelled(ctx context.Context, err error) {
	if j.stopRequested(ctx) || errors.Is(err, context.Canceled) {
		j.acknowledgeCancel()
		return
	}
	j.fail(err)
}

func (j *Job) acknowledgeCancel() {
	if !j.finish(StateCancelled, "", "") {
		return
	}
	j.logger.Debug().Msg("job cancelled")
	j.emit(Event{Kind: EventCancelled})
}

// finish moves the job to a terminal state exactly once.
func (j *Job) finish(state State, ref, detail string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return false
	}
	j.state = state
	j.artifactRef = ref
	j.errorDetail = detail
	j.finishedAt = j.deps.Now()
	return true
}

func (j *Job) emit(ev Event) {
	ev.Generation = j.params.Generation
	ev.Index = j.params.Index
	ev.Time = j.deps.Now()
	j.report(ev)
}
