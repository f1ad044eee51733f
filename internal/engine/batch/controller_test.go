package batch

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/tryon/internal/engine/job"
	"github.com/rshade/tryon/internal/genai"
	"github.com/rshade/tryon/internal/storage"
)

type recordingSink struct {
	mu        sync.Mutex
	started   []BatchInfo
	progress  map[int][]int
	terminals map[int][]Outcome
	completes []Summary
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		progress:  make(map[int][]int),
		terminals: make(map[int][]Outcome),
	}
}

func (s *recordingSink) OnBatchStarted(info BatchInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, info)
}

func (s *recordingSink) OnProgress(index, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[index] = append(s.progress[index], percent)
}

func (s *recordingSink) OnTerminal(index int, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminals[index] = append(s.terminals[index], outcome)
}

func (s *recordingSink) OnBatchComplete(summary Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes = append(s.completes, summary)
}

func (s *recordingSink) completeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completes)
}

func (s *recordingSink) lastSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completes[len(s.completes)-1]
}

func (s *recordingSink) terminalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, outs := range s.terminals {
		n += len(outs)
	}
	return n
}

func (s *recordingSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.completes)
	for _, outs := range s.terminals {
		n += len(outs)
	}
	for _, p := range s.progress {
		n += len(p)
	}
	return n
}

type memLoader struct{}

func (memLoader) Load(_ context.Context, path string) (genai.Image, error) {
	return genai.Image{Path: path, MIME: "image/png", Data: []byte(path)}, nil
}

type manualScheduler struct {
	mu        sync.Mutex
	n         int
	fire      func(int)
	cancelled bool
}

func (m *manualScheduler) Schedule(n int, fire func(int)) Canceller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n = n
	m.fire = fire
	m.cancelled = false
	return m
}

func (m *manualScheduler) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = true
}

func (m *manualScheduler) Stop() {
	m.CancelAll()
}

func (m *manualScheduler) fireAll() {
	m.mu.Lock()
	n, fire, cancelled := m.n, m.fire, m.cancelled
	m.mu.Unlock()
	if cancelled {
		return
	}
	for i := range n {
		fire(i)
	}
}

func indexOf(t *testing.T, req genai.Request) int {
	t.Helper()
	i, err := strconv.Atoi(req.RequestID[strings.LastIndex(req.RequestID, "-")+1:])
	require.NoError(t, err)
	return i
}

func pngArtifact() *genai.Artifact {
	return &genai.Artifact{MIME: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}

func newTestController(t *testing.T, cfg ControllerConfig, gen genai.Generator, sink Sink, sched Scheduler) (*Controller, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	c, err := NewController(cfg, ControllerDeps{
		Generators: func(string) (genai.Generator, error) { return gen, nil },
		Loader:     memLoader{},
		Store:      store,
		Sink:       sink,
		Scheduler:  sched,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, store
}

func testConfig(size int, stagger time.Duration) ControllerConfig {
	cfg := DefaultControllerConfig()
	cfg.BatchSize = size
	cfg.Stagger = stagger
	cfg.CancelWait = 200 * time.Millisecond
	cfg.Pacing = job.Pacing{Delay: 0, Poll: time.Millisecond}
	return cfg
}

func request() Request {
	return Request{Prompt: "try it on", PersonPath: "person.png", ClothingPath: "shirt.png", APIKey: "key"}
}

func waitBatch(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestController_AllSucceedWithStaggeredStarts(t *testing.T) {
	const stagger = 500 * time.Millisecond
	var mu sync.Mutex
	calledAt := map[int]time.Time{}
	gen := genai.GeneratorFunc(func(_ context.Context, req genai.Request) (*genai.Artifact, error) {
		mu.Lock()
		calledAt[indexOf(t, req)] = time.Now()
		mu.Unlock()
		return pngArtifact(), nil
	})
	sink := newRecordingSink()
	c, store := newTestController(t, testConfig(3, stagger), gen, sink, nil)

	info, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Generation)
	assert.Equal(t, 3, info.Size)
	assert.NotEmpty(t, info.ID)
	waitBatch(t, c)

	require.Equal(t, 1, sink.completeCount())
	summary := sink.lastSummary()
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.False(t, summary.UserCancelled)
	assert.Len(t, summary.Artifacts(), 3)

	for i := range 3 {
		require.Len(t, sink.terminals[i], 1, "index %d", i)
		assert.True(t, sink.terminals[i][0].Success())
		assert.Contains(t, sink.terminals[i][0].ArtifactRef, "result_"+strconv.Itoa(i)+"_")
		assert.Equal(t, []int{10, 30, 50, 60, 80, 100}, sink.progress[i])
	}

	mu.Lock()
	assert.GreaterOrEqual(t, calledAt[2].Sub(info.StartedAt), 2*stagger)
	assert.False(t, calledAt[1].Before(calledAt[0]))
	assert.False(t, calledAt[2].Before(calledAt[1]))
	mu.Unlock()

	entries, err := os.ReadDir(store.BasePath())
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, 3, snap.Progress.SucceededJobs)
	assert.InDelta(t, 100.0, snap.Progress.PercentComplete, 1e-9)
	for i, slot := range snap.Slots {
		assert.Equal(t, job.StateSucceeded, slot.State)
		assert.InDelta(t, 0.4+0.05*float64(i), slot.Temperature, 1e-9)
	}
}

func TestController_OneJobWithoutArtifact(t *testing.T) {
	gen := genai.GeneratorFunc(func(_ context.Context, req genai.Request) (*genai.Artifact, error) {
		if indexOf(t, req) == 1 {
			return &genai.Artifact{Texts: []string{"no image this time"}}, nil
		}
		return pngArtifact(), nil
	})
	sink := newRecordingSink()
	c, _ := newTestController(t, testConfig(3, 10*time.Millisecond), gen, sink, nil)

	_, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	waitBatch(t, c)

	require.Equal(t, 1, sink.completeCount())
	summary := sink.lastSummary()
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	assert.True(t, sink.terminals[0][0].Success())
	assert.True(t, sink.terminals[2][0].Success())
	require.Len(t, sink.terminals[1], 1)
	assert.False(t, sink.terminals[1][0].Success())
	require.ErrorIs(t, sink.terminals[1][0].Err, job.ErrNoArtifactReturned)
	assert.Equal(t, job.StateFailed, summary.Slots[1].State)
	assert.NotEmpty(t, summary.Slots[1].ErrorDetail)
	assert.Empty(t, summary.Slots[1].ArtifactRef)
}

func TestController_CompletionFiresOnlyAfterLastTerminal(t *testing.T) {
	const n = 4
	release := make([]chan struct{}, n)
	for i := range release {
		release[i] = make(chan struct{})
	}
	gen := genai.GeneratorFunc(func(_ context.Context, req genai.Request) (*genai.Artifact, error) {
		<-release[indexOf(t, req)]
		return pngArtifact(), nil
	})
	sink := newRecordingSink()
	c, _ := newTestController(t, testConfig(n, 0), gen, sink, nil)

	_, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)

	for i := range n - 1 {
		close(release[i])
	}
	require.Eventually(t, func() bool { return sink.terminalCount() == n-1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sink.completeCount())
	assert.Equal(t, PhaseLaunching, c.Snapshot().Phase)

	close(release[n-1])
	waitBatch(t, c)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sink.completeCount())
	assert.Equal(t, n, sink.lastSummary().Succeeded)
}

func TestController_CancelBeforeAnyStart(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	gen := genai.GeneratorFunc(func(context.Context, genai.Request) (*genai.Artifact, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return pngArtifact(), nil
	})
	sink := newRecordingSink()
	sched := &manualScheduler{}
	c, store := newTestController(t, testConfig(3, time.Second), gen, sink, sched)

	_, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	require.NoError(t, c.CancelBatch(context.Background()))

	// A timer that races the cancel must not start anything.
	sched.mu.Lock()
	sched.cancelled = false
	sched.mu.Unlock()
	sched.fireAll()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Zero(t, calls)
	mu.Unlock()
	entries, err := os.ReadDir(store.BasePath())
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.Equal(t, 1, sink.completeCount())
	summary := sink.lastSummary()
	assert.True(t, summary.UserCancelled)
	assert.Equal(t, 3, summary.Cancelled)
	assert.Zero(t, c.Snapshot().Progress.StartedJobs)
}

func TestController_CancelMidFlight(t *testing.T) {
	gen := genai.GeneratorFunc(func(context.Context, genai.Request) (*genai.Artifact, error) {
		return pngArtifact(), nil
	})
	sink := newRecordingSink()
	cfg := testConfig(3, 0)
	cfg.Pacing = job.Pacing{Delay: time.Minute, Poll: 5 * time.Millisecond}
	c, store := newTestController(t, cfg, gen, sink, nil)

	_, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, slot := range c.Snapshot().Slots {
			if slot.Progress != job.ProgressRequest {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, c.CancelBatch(context.Background()))
	assert.Less(t, time.Since(start), cfg.CancelWait+500*time.Millisecond)

	require.Equal(t, 1, sink.completeCount())
	summary := sink.lastSummary()
	assert.Equal(t, 3, summary.Cancelled)
	for _, slot := range summary.Slots {
		assert.Equal(t, job.StateCancelled, slot.State)
		assert.False(t, slot.Abandoned)
	}

	before := sink.eventCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, sink.eventCount(), "no events after the batch drained")
	entries, err := os.ReadDir(store.BasePath())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestController_AbandonsNonCooperativeJob(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	gen := genai.GeneratorFunc(func(context.Context, genai.Request) (*genai.Artifact, error) {
		entered <- struct{}{}
		<-release
		return pngArtifact(), nil
	})
	sink := newRecordingSink()
	cfg := testConfig(1, 0)
	cfg.CancelWait = 50 * time.Millisecond
	c, _ := newTestController(t, cfg, gen, sink, nil)

	_, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	<-entered

	require.NoError(t, c.CancelBatch(context.Background()))
	require.Equal(t, 1, sink.completeCount())
	slot := sink.lastSummary().Slots[0]
	assert.Equal(t, job.StateCancelled, slot.State)
	assert.True(t, slot.Abandoned)

	before := sink.eventCount()
	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, sink.eventCount())
}

func TestController_SupersedeDiscardsStaleGeneration(t *testing.T) {
	release := make(chan struct{})
	gen := genai.GeneratorFunc(func(ctx context.Context, _ genai.Request) (*genai.Artifact, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return pngArtifact(), nil
	})
	sink := newRecordingSink()
	cfg := testConfig(2, 0)
	cfg.CancelWait = 50 * time.Millisecond
	c, _ := newTestController(t, cfg, gen, sink, nil)

	first, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Snapshot().Progress.StartedJobs == 2 }, 5*time.Second, 5*time.Millisecond)

	second, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, first.Generation+1, second.Generation)
	assert.Equal(t, second.Generation, c.Generation())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Zero(t, sink.completeCount(), "a superseded batch never completes")

	// A late event from the first generation must not touch the new slots.
	c.report(job.Event{Generation: first.Generation, Index: 0, Kind: job.EventSucceeded, ArtifactRef: "stale.png"})
	c.report(job.Event{Generation: first.Generation, Index: 1, Kind: job.EventProgress, Percent: 80})
	time.Sleep(50 * time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, second.Generation, snap.Generation)
	for _, slot := range snap.Slots {
		assert.NotEqual(t, "stale.png", slot.ArtifactRef)
		assert.NotEqual(t, job.StateSucceeded, slot.State)
	}
	for _, outs := range sink.terminals {
		for _, o := range outs {
			assert.NotEqual(t, "stale.png", o.ArtifactRef)
		}
	}

	close(release)
	waitBatch(t, c)
	require.Equal(t, 1, sink.completeCount())
	summary := sink.lastSummary()
	assert.Equal(t, second.Generation, summary.Generation)
	assert.Equal(t, 2, summary.Succeeded)
	require.Len(t, sink.started, 2)
}

func TestController_MissingCredentialFailsFast(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestController(t, testConfig(3, 0), genai.Synthetic{}, sink, nil)

	_, err := c.StartBatch(context.Background(), Request{PersonPath: "p", ClothingPath: "c", APIKey: " "})
	require.ErrorIs(t, err, job.ErrMissingCredential)
	assert.Zero(t, c.Generation())
	assert.Empty(t, sink.started)
	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)
}

func TestController_Validation(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	deps := ControllerDeps{
		Generators: func(string) (genai.Generator, error) { return genai.Synthetic{}, nil },
		Loader:     memLoader{},
		Store:      store,
		Sink:       NopSink{},
	}

	t.Run("NilSink", func(t *testing.T) {
		d := deps
		d.Sink = nil
		_, err := NewController(DefaultControllerConfig(), d)
		assert.ErrorIs(t, err, ErrNilSink)
	})

	t.Run("MissingLoader", func(t *testing.T) {
		d := deps
		d.Loader = nil
		_, err := NewController(DefaultControllerConfig(), d)
		assert.ErrorIs(t, err, ErrMissingDependency)
	})

	t.Run("InvalidBatchSize", func(t *testing.T) {
		cfg := DefaultControllerConfig()
		cfg.BatchSize = MaxBatchSize + 1
		_, err := NewController(cfg, deps)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)

		c, err := NewController(DefaultControllerConfig(), deps)
		require.NoError(t, err)
		defer func() { _ = c.Close(context.Background()) }()
		req := request()
		req.Size = -1
		_, err = c.StartBatch(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
	})

	t.Run("InvalidVariant", func(t *testing.T) {
		cfg := DefaultControllerConfig()
		cfg.Variant = job.VariantConfig{Base: 1, Min: 2, Max: 1}
		_, err := NewController(cfg, deps)
		assert.ErrorIs(t, err, job.ErrInvalidVariant)
	})
}

func TestController_CloseRejectsNewBatches(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestController(t, testConfig(1, 0), genai.Synthetic{}, sink, &manualScheduler{})

	_, err := c.StartBatch(context.Background(), request())
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	_, err = c.StartBatch(context.Background(), request())
	require.ErrorIs(t, err, ErrControllerClosed)
	assert.Zero(t, sink.completeCount())
}

func TestController_CancelWhenIdleIsNoop(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestController(t, testConfig(1, 0), genai.Synthetic{}, sink, nil)
	require.NoError(t, c.CancelBatch(context.Background()))
	assert.Zero(t, sink.completeCount())
	require.NoError(t, c.Wait(context.Background()))
}
