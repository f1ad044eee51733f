package batch

import (
	"sync"
	"time"

	"github.com/rshade/tryon/internal/engine/job"
)

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Progress tracks aggregate job counts for a batch.
// It provides thread-safe access to progress metrics for UI updates.
type Progress struct {
	// TotalJobs is the batch size.
	TotalJobs int

	// StartedJobs is the number of jobs the launcher has started.
	StartedJobs int

	// SucceededJobs is the number of jobs that wrote an artifact.
	SucceededJobs int

	// FailedJobs is the number of jobs that reported a failure.
	FailedJobs int

	// CancelledJobs counts cancelled and abandoned jobs, started or not.
	CancelledJobs int

	// StartTime is when the batch started.
	StartTime time.Time

	// LastUpdateTime is when progress was last updated.
	LastUpdateTime time.Time

	// mu protects concurrent access to progress fields.
	mu sync.RWMutex
}

// NewProgress creates a new progress tracker.
func NewProgress(totalJobs int) *Progress {
	now := time.Now()
	return &Progress{
		TotalJobs:      totalJobs,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// MarkStarted records one job start.
// This method is thread-safe.
func (p *Progress) MarkStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.StartedJobs++
	p.LastUpdateTime = time.Now()
}

// Record counts a terminal state. Non-terminal states are ignored.
// This method is thread-safe.
func (p *Progress) Record(state job.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch state {
	case job.StateSucceeded:
		p.SucceededJobs++
	case job.StateFailed:
		p.FailedJobs++
	case job.StateCancelled:
		p.CancelledJobs++
	default:
		return
	}
	p.LastUpdateTime = time.Now()
}

// PercentComplete returns the share of jobs in a terminal state (0-100).
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.percentCompleteUnsafe()
}

// IsComplete returns true if every job has reached a terminal state.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.finishedUnsafe() >= p.TotalJobs
}

// ElapsedTime returns the time elapsed since the batch started.
func (p *Progress) ElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.StartTime)
}

// EstimatedTimeRemaining estimates the remaining time based on finished jobs.
// Returns 0 if no job has finished yet.
func (p *Progress) EstimatedTimeRemaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	finished := p.finishedUnsafe()
	if finished == 0 {
		return 0
	}

	elapsed := time.Since(p.StartTime)
	avgTimePerJob := elapsed / time.Duration(finished)
	remaining := p.TotalJobs - finished
	if remaining < 0 {
		remaining = 0
	}

	return avgTimePerJob * time.Duration(remaining)
}

// Snapshot returns a thread-safe copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalJobs:       p.TotalJobs,
		StartedJobs:     p.StartedJobs,
		SucceededJobs:   p.SucceededJobs,
		FailedJobs:      p.FailedJobs,
		CancelledJobs:   p.CancelledJobs,
		StartTime:       p.StartTime,
		LastUpdateTime:  p.LastUpdateTime,
		PercentComplete: p.percentCompleteUnsafe(),
		ElapsedTime:     time.Since(p.StartTime),
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalJobs       int
	StartedJobs     int
	SucceededJobs   int
	FailedJobs      int
	CancelledJobs   int
	StartTime       time.Time
	LastUpdateTime  time.Time
	PercentComplete float64
	ElapsedTime     time.Duration
}

// finishedUnsafe counts terminal jobs without locking.
// Should only be called when already holding the lock.
func (p *Progress) finishedUnsafe() int {
	return p.SucceededJobs + p.FailedJobs + p.CancelledJobs
}

// percentCompleteUnsafe calculates percent complete without locking.
// Should only be called when already holding the lock.
func (p *Progress) percentCompleteUnsafe() float64 {
	if p.TotalJobs == 0 {
		return 0
	}
	return (float64(p.finishedUnsafe()) / float64(p.TotalJobs)) * percentMultiplier
}

// Reset resets the tracker for a new batch of totalJobs.
func (p *Progress) Reset(totalJobs int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.TotalJobs = totalJobs
	p.StartedJobs = 0
	p.SucceededJobs = 0
	p.FailedJobs = 0
	p.CancelledJobs = 0
	p.StartTime = now
	p.LastUpdateTime = now
}
