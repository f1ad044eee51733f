package batch

import (
	"time"

	"github.com/rshade/tryon/internal/engine/job"
)

// Slot is the controller's view of one job index.
type Slot struct {
	Index       int
	State       job.State
	Progress    int
	Temperature float64
	ArtifactRef string
	ErrorDetail string
	// Abandoned is set when a running job did not stop within the cancel wait.
	Abandoned  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Registry holds the jobs and slots of one generation. It is owned by the
// controller loop and is not safe for concurrent use.
type Registry struct {
	generation uint64
	jobs       []*job.Job
	slots      []Slot
}

// NewRegistry creates a registry with every slot Pending at 0%.
func NewRegistry(generation uint64, jobs []*job.Job, temperatures []float64) *Registry {
	slots := make([]Slot, len(jobs))
	for i := range slots {
		slots[i] = Slot{Index: i, State: job.StatePending}
		if i < len(temperatures) {
			slots[i].Temperature = temperatures[i]
		}
	}
	return &Registry{generation: generation, jobs: jobs, slots: slots}
}

// Generation returns the generation the registry belongs to.
func (r *Registry) Generation() uint64 {
	return r.generation
}

// Len returns the batch size.
func (r *Registry) Len() int {
	return len(r.slots)
}

// Job returns the job at index i, or nil when out of range.
func (r *Registry) Job(i int) *job.Job {
	if i < 0 || i >= len(r.jobs) {
		return nil
	}
	return r.jobs[i]
}

// Slot returns a copy of slot i.
func (r *Registry) Slot(i int) (Slot, bool) {
	if i < 0 || i >= len(r.slots) {
		return Slot{}, false
	}
	return r.slots[i], true
}

// Slots returns a copy of every slot in index order.
func (r *Registry) Slots() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// MarkRunning moves a pending slot to Running.
func (r *Registry) MarkRunning(i int, at time.Time) bool {
	if i < 0 || i >= len(r.slots) || r.slots[i].State != job.StatePending {
		return false
	}
	r.slots[i].State = job.StateRunning
	r.slots[i].StartedAt = at
	return true
}

// UpdateProgress raises the progress of a running slot. Lower or equal values
// are ignored so progress never decreases.
func (r *Registry) UpdateProgress(i, percent int) bool {
	if i < 0 || i >= len(r.slots) {
		return false
	}
	s := &r.slots[i]
	if s.State != job.StateRunning || percent <= s.Progress {
		return false
	}
	if percent > job.ProgressDone {
		percent = job.ProgressDone
	}
	s.Progress = percent
	return true
}

// Finish moves slot i to a terminal state. It reports false when the slot is
// already terminal.
func (r *Registry) Finish(i int, state job.State, ref, detail string, at time.Time) bool {
	if i < 0 || i >= len(r.slots) || !state.IsTerminal() {
		return false
	}
	s := &r.slots[i]
	if s.State.IsTerminal() {
		return false
	}
	s.State = state
	s.FinishedAt = at
	switch state {
	case job.StateSucceeded:
		s.Progress = job.ProgressDone
		s.ArtifactRef = ref
	case job.StateFailed:
		s.ErrorDetail = detail
	}
	return true
}

// CancelPending marks every pending slot Cancelled and returns their indices.
func (r *Registry) CancelPending(at time.Time) []int {
	var cancelled []int
	for i := range r.slots {
		if r.slots[i].State == job.StatePending {
			r.Finish(i, job.StateCancelled, "", "", at)
			cancelled = append(cancelled, i)
		}
	}
	return cancelled
}

// Running returns the jobs whose slots are Running.
func (r *Registry) Running() []*job.Job {
	var out []*job.Job
	for i, s := range r.slots {
		if s.State == job.StateRunning {
			out = append(out, r.jobs[i])
		}
	}
	return out
}

// Abandon marks a running slot Cancelled and flags it as abandoned.
func (r *Registry) Abandon(i int, at time.Time) bool {
	if !r.Finish(i, job.StateCancelled, "", "", at) {
		return false
	}
	r.slots[i].Abandoned = true
	return true
}

// AllTerminal reports whether no slot is Pending or Running.
func (r *Registry) AllTerminal() bool {
	for _, s := range r.slots {
		if !s.State.IsTerminal() {
			return false
		}
	}
	return true
}

// Counts tallies terminal slots by state.
func (r *Registry) Counts() (succeeded, failed, cancelled int) {
	for _, s := range r.slots {
		switch s.State {
		case job.StateSucceeded:
			succeeded++
		case job.StateFailed:
			failed++
		case job.StateCancelled:
			cancelled++
		}
	}
	return succeeded, failed, cancelled
}
