package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/tryon/internal/engine/job"
	"github.com/rshade/tryon/internal/engine/launcher"
)

const (
	// DefaultBatchSize is the number of jobs per batch.
	DefaultBatchSize = 10

	// MaxBatchSize bounds a single batch.
	MaxBatchSize = 100

	// DefaultCancelWait bounds how long each cancelled job is awaited.
	DefaultCancelWait = time.Second

	eventBuffer = 256
)

// Controller errors.
var (
	ErrControllerClosed  = errors.New("batch controller is closed")
	ErrInvalidBatchSize  = fmt.Errorf("batch size must be between 1 and %d", MaxBatchSize)
	ErrNilSink           = errors.New("batch sink cannot be nil")
	ErrMissingDependency = errors.New("batch controller dependency missing")
)

// Phase is the controller's batch lifecycle phase.
type Phase int

const (
	// PhaseIdle means no batch is active.
	PhaseIdle Phase = iota
	// PhaseLaunching means jobs are being started or are running.
	PhaseLaunching
	// PhaseCancelling means the active batch is draining after a cancel.
	PhaseCancelling
	// PhaseCompleting is held while completion is being reported.
	PhaseCompleting
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLaunching:
		return "launching"
	case PhaseCancelling:
		return "cancelling"
	case PhaseCompleting:
		return "completing"
	default:
		return "unknown"
	}
}

// Canceller stops scheduled starts that have not fired.
type Canceller interface {
	CancelAll()
}

// Scheduler arranges staggered starts.
type Scheduler interface {
	Schedule(n int, fire func(i int)) Canceller
	Stop()
}

type launcherScheduler struct {
	l *launcher.Launcher
}

func (s launcherScheduler) Schedule(n int, fire func(int)) Canceller {
	return s.l.Schedule(n, fire)
}

func (s launcherScheduler) Stop() {
	s.l.Stop()
}

// FromLauncher adapts a launcher to the Scheduler interface.
func FromLauncher(l *launcher.Launcher) Scheduler {
	return launcherScheduler{l: l}
}

// ControllerConfig holds batch tuning.
type ControllerConfig struct {
	BatchSize  int
	Stagger    time.Duration
	CancelWait time.Duration
	Variant    job.VariantConfig
	Pacing     job.Pacing

	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// DefaultControllerConfig returns ten jobs two seconds apart with the default
// variant and pacing.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		BatchSize:  DefaultBatchSize,
		Stagger:    launcher.DefaultInterval,
		CancelWait: DefaultCancelWait,
		Variant:    job.DefaultVariant(),
		Pacing:     job.DefaultPacing(),
	}
}

// ControllerDeps are the controller's collaborators.
type ControllerDeps struct {
	Generators job.GeneratorFactory
	Loader     job.InputLoader
	Store      job.ArtifactStore
	Sink       Sink

	// Scheduler defaults to a launcher spaced by ControllerConfig.Stagger.
	Scheduler Scheduler
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Request describes one batch.
type Request struct {
	// Size defaults to ControllerConfig.BatchSize when zero.
	Size         int
	Prompt       string
	PersonPath   string
	ClothingPath string
	APIKey       string
}

// Snapshot is a point-in-time copy of controller state.
type Snapshot struct {
	BatchID    string
	Generation uint64
	Phase      Phase
	Slots      []Slot
	Progress   ProgressSnapshot
}

// Controller runs batches of jobs. All batch state is owned by one loop
// goroutine; exported methods are safe for concurrent use.
type Controller struct {
	cfg       ControllerConfig
	deps      ControllerDeps
	logger    zerolog.Logger
	scheduler Scheduler

	lifetime context.Context //nolint:containedctx // bounds in-flight service calls until Close
	stop     context.CancelFunc

	events    chan job.Event
	cmds      chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// opMu serialises StartBatch, CancelBatch and Close.
	opMu sync.Mutex

	gen  atomic.Uint64
	snap atomic.Pointer[Snapshot]

	doneMu    sync.Mutex
	batchDone chan struct{}

	// Owned by the loop goroutine.
	phase       Phase
	registry    *Registry
	handle      Canceller
	info        BatchInfo
	progress    *Progress
	userCancel  bool
	superseding bool
}

// NewController validates its inputs and starts the controller loop.
func NewController(cfg ControllerConfig, deps ControllerDeps) (*Controller, error) {
	if deps.Sink == nil {
		return nil, ErrNilSink
	}
	switch {
	case deps.Generators == nil:
		return nil, fmt.Errorf("%w: generator factory", ErrMissingDependency)
	case deps.Loader == nil:
		return nil, fmt.Errorf("%w: input loader", ErrMissingDependency)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: artifact store", ErrMissingDependency)
	}

	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, cfg.BatchSize)
	}
	if cfg.Stagger < 0 {
		cfg.Stagger = 0
	}
	if cfg.CancelWait <= 0 {
		cfg.CancelWait = DefaultCancelWait
	}
	if cfg.Variant == (job.VariantConfig{}) {
		cfg.Variant = job.DefaultVariant()
	}
	if err := cfg.Variant.Validate(); err != nil {
		return nil, err
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Scheduler == nil {
		deps.Scheduler = FromLauncher(launcher.New(cfg.Stagger))
	}

	lifetime, stop := context.WithCancel(context.Background())
	c := &Controller{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "batch").Logger(),
		scheduler: deps.Scheduler,
		lifetime:  lifetime,
		stop:      stop,
		events:    make(chan job.Event, eventBuffer),
		cmds:      make(chan func()),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		batchDone: make(chan struct{}),
	}
	close(c.batchDone)
	c.publish()

	go c.loop()
	return c, nil
}

// StartBatch supersedes any active batch and starts a new one. It fails fast
// with job.ErrMissingCredential, without touching any state, when the request
// has no credential.
func (c *Controller) StartBatch(ctx context.Context, req Request) (BatchInfo, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return BatchInfo{}, job.ErrMissingCredential
	}
	size := req.Size
	if size == 0 {
		size = c.cfg.BatchSize
	}
	if size < 1 || size > MaxBatchSize {
		return BatchInfo{}, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.drain(ctx, true); err != nil {
		return BatchInfo{}, fmt.Errorf("superseding previous batch: %w", err)
	}

	var info BatchInfo
	if err := c.do(ctx, func() { info = c.begin(req, size) }); err != nil {
		return BatchInfo{}, err
	}
	return info, nil
}

// CancelBatch cancels the active batch and waits, bounded per job, for its
// running jobs to stop. The batch then completes with UserCancelled set. It
// is a no-op when no batch is active.
func (c *Controller) CancelBatch(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	return c.drain(ctx, false)
}

// Snapshot returns the most recently published controller state. It never
// blocks and may be called from sink callbacks.
func (c *Controller) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Generation returns the current batch generation. It is zero before the
// first batch.
func (c *Controller) Generation() uint64 {
	return c.gen.Load()
}

// Wait blocks until the current batch completes or is superseded.
func (c *Controller) Wait(ctx context.Context) error {
	c.doneMu.Lock()
	done := c.batchDone
	c.doneMu.Unlock()

	select {
	case <-done:
		return nil
	default:
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.loopDone:
		return ErrControllerClosed
	}
}

// Close cancels the active batch without reporting completion, stops the
// launcher and the loop. In-flight service calls are cancelled through the
// controller's lifetime context.
func (c *Controller) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.opMu.Lock()
		defer c.opMu.Unlock()

		err = c.drain(ctx, true)
		c.scheduler.Stop()
		c.stop()
		close(c.quit)
		<-c.loopDone
		c.logger.Debug().Msg("controller closed")
	})
	return err
}

func (c *Controller) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.quit:
			return
		case ev := <-c.events:
			c.handleEvent(ev)
		case fn := <-c.cmds:
			fn()
		}
	}
}

// do runs fn on the loop and waits for it to return.
func (c *Controller) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case c.cmds <- wrapped:
	case <-c.quit:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.loopDone:
		return ErrControllerClosed
	}
}

// post hands fn to the loop without waiting for it to run.
func (c *Controller) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.quit:
	}
}

// report is the job.Reporter for every job.
func (c *Controller) report(ev job.Event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// drain cancels the active batch in three steps: tear down on the loop, await
// running jobs off the loop, then settle stragglers on the loop.
func (c *Controller) drain(ctx context.Context, supersede bool) error {
	var running []*job.Job
	if err := c.do(ctx, func() { running = c.beginDrain(supersede) }); err != nil {
		return err
	}

	waitErr := c.awaitJobs(ctx, running)

	// Settling must happen even if ctx ended during the wait.
	if err := c.do(context.WithoutCancel(ctx), func() { c.finishDrain(running, supersede) }); err != nil {
		return err
	}
	return waitErr
}

func (c *Controller) beginDrain(supersede bool) []*job.Job {
	if c.registry == nil || c.phase == PhaseIdle {
		return nil
	}
	if c.handle != nil {
		c.handle.CancelAll()
	}

	pending := c.registry.CancelPending(c.deps.Now())
	for range pending {
		c.progress.Record(job.StateCancelled)
	}
	running := c.registry.Running()
	for _, j := range running {
		j.Cancel()
	}

	c.phase = PhaseCancelling
	c.superseding = supersede
	c.userCancel = !supersede
	c.logger.Info().
		Str("batch_id", c.info.ID).
		Uint64("generation", c.registry.Generation()).
		Int("unstarted", len(pending)).
		Int("running", len(running)).
		Bool("supersede", supersede).
		Msg("cancelling batch")

	c.publish()
	c.checkComplete()
	return running
}

// awaitJobs waits for each job to exit, at most CancelWait per job, all
// concurrently.
func (c *Controller) awaitJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			timer := time.NewTimer(c.cfg.CancelWait)
			defer timer.Stop()
			select {
			case <-j.Done():
			case <-timer.C:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) finishDrain(running []*job.Job, supersede bool) {
	if c.registry == nil {
		return
	}

	// Jobs that exited have already queued their final event.
	c.drainEvents()

	now := c.deps.Now()
	for _, j := range running {
		if j.Generation() != c.registry.Generation() {
			continue
		}
		exited := false
		select {
		case <-j.Done():
			exited = true
		default:
		}
		if exited {
			if c.registry.Finish(j.Index(), job.StateCancelled, "", "", now) {
				c.progress.Record(job.StateCancelled)
			}
			continue
		}
		if c.registry.Abandon(j.Index(), now) {
			c.progress.Record(job.StateCancelled)
			c.logger.Warn().
				Int("index", j.Index()).
				Uint64("generation", j.Generation()).
				Dur("cancel_wait", c.cfg.CancelWait).
				Msg("job did not stop in time; abandoning")
		}
	}

	if supersede {
		if c.phase != PhaseIdle {
			c.phase = PhaseIdle
			c.handle = nil
			c.releaseWaiters()
		}
		c.publish()
		return
	}
	c.publish()
	c.checkComplete()
}

func (c *Controller) drainEvents() {
	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
		default:
			return
		}
	}
}

func (c *Controller) begin(req Request, size int) BatchInfo {
	gen := c.gen.Add(1)
	id := ulid.Make().String()
	now := c.deps.Now()

	jobLogger := c.deps.Logger.With().Str("component", "job").Str("batch_id", id).Logger()
	deps := job.Deps{
		Generators: c.deps.Generators,
		Loader:     c.deps.Loader,
		Store:      c.deps.Store,
		Pacing:     c.cfg.Pacing,
		Logger:     jobLogger,
		Now:        c.deps.Now,
	}

	jobs := make([]*job.Job, size)
	temps := make([]float64, size)
	for i := range size {
		temps[i] = c.cfg.Variant.Temperature(i)
		jobs[i] = job.New(job.Params{
			Index:           i,
			Generation:      gen,
			RequestID:       fmt.Sprintf("%s-%d", id, i),
			Prompt:          req.Prompt,
			PersonPath:      req.PersonPath,
			ClothingPath:    req.ClothingPath,
			Temperature:     temps[i],
			APIKey:          req.APIKey,
			TopK:            c.cfg.TopK,
			TopP:            c.cfg.TopP,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		}, deps, c.report)
	}

	c.registry = NewRegistry(gen, jobs, temps)
	c.progress = NewProgress(size)
	c.phase = PhaseLaunching
	c.userCancel = false
	c.superseding = false
	c.info = BatchInfo{
		ID:           id,
		Generation:   gen,
		Size:         size,
		Stagger:      c.cfg.Stagger,
		Prompt:       req.Prompt,
		Temperatures: append([]float64(nil), temps...),
		StartedAt:    now,
	}
	c.resetWaiters()

	c.logger.Info().
		Str("batch_id", id).
		Uint64("generation", gen).
		Int("size", size).
		Dur("stagger", c.cfg.Stagger).
		Msg("batch started")
	c.deps.Sink.OnBatchStarted(c.info)

	c.handle = c.scheduler.Schedule(size, func(i int) {
		c.post(func() { c.launch(gen, i) })
	})
	c.publish()
	return c.info
}

func (c *Controller) launch(gen uint64, i int) {
	if c.registry == nil || gen != c.registry.Generation() {
		c.logger.Debug().Uint64("event_generation", gen).Int("index", i).Msg("discarding stale launch")
		return
	}
	if c.phase != PhaseLaunching {
		return
	}
	j := c.registry.Job(i)
	if j == nil || !c.registry.MarkRunning(i, c.deps.Now()) {
		return
	}
	c.progress.MarkStarted()
	c.logger.Debug().Int("index", i).Uint64("generation", gen).Msg("job launched")
	j.Start(c.lifetime)
	c.publish()
}

func (c *Controller) handleEvent(ev job.Event) {
	if c.registry == nil || ev.Generation != c.registry.Generation() {
		c.logger.Debug().
			Uint64("event_generation", ev.Generation).
			Uint64("generation", c.gen.Load()).
			Int("index", ev.Index).
			Str("kind", ev.Kind.String()).
			Msg("discarding stale event")
		return
	}
	slot, ok := c.registry.Slot(ev.Index)
	if !ok || slot.State.IsTerminal() {
		return
	}

	switch ev.Kind {
	case job.EventProgress:
		if c.phase == PhaseCancelling {
			return
		}
		if !c.registry.UpdateProgress(ev.Index, ev.Percent) {
			return
		}
		c.deps.Sink.OnProgress(ev.Index, ev.Percent)
	case job.EventSucceeded:
		c.finishSlot(ev, job.StateSucceeded)
		c.deps.Sink.OnTerminal(ev.Index, Outcome{Kind: OutcomeSucceeded, ArtifactRef: ev.ArtifactRef})
	case job.EventFailed:
		c.finishSlot(ev, job.StateFailed)
		c.deps.Sink.OnTerminal(ev.Index, Outcome{Kind: OutcomeFailed, ErrorDetail: ev.ErrorDetail, Err: ev.Err})
	case job.EventCancelled:
		c.finishSlot(ev, job.StateCancelled)
	}

	c.publish()
	c.checkComplete()
}

func (c *Controller) finishSlot(ev job.Event, state job.State) {
	at := ev.Time
	if at.IsZero() {
		at = c.deps.Now()
	}
	if c.registry.Finish(ev.Index, state, ev.ArtifactRef, ev.ErrorDetail, at) {
		c.progress.Record(state)
	}
}

// checkComplete reports completion once every slot is terminal. It is the
// only place that fires OnBatchComplete.
func (c *Controller) checkComplete() {
	if c.registry == nil || c.superseding {
		return
	}
	if c.phase != PhaseLaunching && c.phase != PhaseCancelling {
		return
	}
	if !c.registry.AllTerminal() {
		return
	}

	c.phase = PhaseCompleting
	summary := c.summary()
	c.logger.Info().
		Str("batch_id", summary.BatchID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("cancelled", summary.Cancelled).
		Msg("batch complete")
	c.deps.Sink.OnBatchComplete(summary)

	c.phase = PhaseIdle
	c.handle = nil
	c.releaseWaiters()
	c.publish()
}

func (c *Controller) summary() Summary {
	succeeded, failed, cancelled := c.registry.Counts()
	return Summary{
		BatchID:       c.info.ID,
		Generation:    c.registry.Generation(),
		Size:          c.registry.Len(),
		Succeeded:     succeeded,
		Failed:        failed,
		Cancelled:     cancelled,
		UserCancelled: c.userCancel,
		Slots:         c.registry.Slots(),
		Elapsed:       c.deps.Now().Sub(c.info.StartedAt),
	}
}

func (c *Controller) publish() {
	s := Snapshot{Generation: c.gen.Load(), Phase: c.phase}
	if c.registry != nil {
		s.BatchID = c.info.ID
		s.Slots = c.registry.Slots()
	}
	if c.progress != nil {
		s.Progress = c.progress.Snapshot()
	}
	c.snap.Store(&s)
}

func (c *Controller) resetWaiters() {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	c.batchDone = make(chan struct{})
}

func (c *Controller) releaseWaiters() {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	select {
	case <-c.batchDone:
	default:
		close(c.batchDone)
	}
}
