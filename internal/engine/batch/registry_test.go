package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/tryon/internal/engine/job"
)

func newTestRegistry(n int) *Registry {
	temps := make([]float64, n)
	for i := range temps {
		temps[i] = job.DefaultVariant().Temperature(i)
	}
	return NewRegistry(7, make([]*job.Job, n), temps)
}

func TestRegistry_InitialSlots(t *testing.T) {
	r := newTestRegistry(3)

	assert.Equal(t, uint64(7), r.Generation())
	assert.Equal(t, 3, r.Len())
	for i, s := range r.Slots() {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, job.StatePending, s.State)
		assert.Zero(t, s.Progress)
	}
	s, ok := r.Slot(2)
	require.True(t, ok)
	assert.InDelta(t, 0.5, s.Temperature, 1e-9)

	_, ok = r.Slot(3)
	assert.False(t, ok)
	assert.Nil(t, r.Job(-1))
}

func TestRegistry_ProgressIsMonotonic(t *testing.T) {
	r := newTestRegistry(1)
	now := time.Now()

	assert.False(t, r.UpdateProgress(0, 10), "pending slot ignores progress")
	require.True(t, r.MarkRunning(0, now))
	assert.False(t, r.MarkRunning(0, now), "already running")

	assert.True(t, r.UpdateProgress(0, 30))
	assert.False(t, r.UpdateProgress(0, 10))
	assert.False(t, r.UpdateProgress(0, 30))
	assert.True(t, r.UpdateProgress(0, 250))

	s, _ := r.Slot(0)
	assert.Equal(t, job.ProgressDone, s.Progress)
}

func TestRegistry_FinishIsAbsorbing(t *testing.T) {
	r := newTestRegistry(2)
	now := time.Now()
	require.True(t, r.MarkRunning(0, now))

	require.True(t, r.Finish(0, job.StateSucceeded, "results/a.png", "", now))
	assert.False(t, r.Finish(0, job.StateFailed, "", "late", now))
	assert.False(t, r.Finish(1, job.StateRunning, "", "", now), "non-terminal state rejected")

	s, _ := r.Slot(0)
	assert.Equal(t, job.StateSucceeded, s.State)
	assert.Equal(t, "results/a.png", s.ArtifactRef)
	assert.Empty(t, s.ErrorDetail)
	assert.Equal(t, job.ProgressDone, s.Progress)
}

func TestRegistry_CancelPendingAndAbandon(t *testing.T) {
	r := newTestRegistry(4)
	now := time.Now()
	require.True(t, r.MarkRunning(0, now))
	require.True(t, r.MarkRunning(1, now))
	require.True(t, r.Finish(1, job.StateFailed, "", "boom", now))

	assert.Equal(t, []int{2, 3}, r.CancelPending(now))
	assert.Len(t, r.Running(), 1)
	assert.False(t, r.AllTerminal())

	require.True(t, r.Abandon(0, now))
	assert.False(t, r.Abandon(0, now))
	assert.True(t, r.AllTerminal())

	s, _ := r.Slot(0)
	assert.True(t, s.Abandoned)
	assert.Equal(t, job.StateCancelled, s.State)

	succeeded, failed, cancelled := r.Counts()
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, cancelled)
}

func TestRegistry_SlotsReturnsCopy(t *testing.T) {
	r := newTestRegistry(1)
	slots := r.Slots()
	slots[0].State = job.StateFailed

	s, _ := r.Slot(0)
	assert.Equal(t, job.StatePending, s.State)
}
