// Package launcher fires a fixed number of starts spaced by a constant
// interval without blocking the caller.
//
// Index 0 fires immediately and every later index fires one interval after the
// previous one, so starts are ordered by index and no two are closer than the
// interval. A Handle cancels whatever has not fired yet; starts that already
// fired are not affected.
package launcher

import (
	"sync"
	"time"
)

// DefaultInterval is the spacing between consecutive starts.
const DefaultInterval = 2 * time.Second

// Launcher schedules staggered starts and tracks live handles for teardown.
type Launcher struct {
	interval time.Duration

	mu      sync.Mutex
	handles map[*Handle]struct{}
	stopped bool
}

// New creates a launcher. A non-positive interval fires every start at once,
// still in index order.
func New(interval time.Duration) *Launcher {
	if interval < 0 {
		interval = 0
	}
	return &Launcher{
		interval: interval,
		handles:  make(map[*Handle]struct{}),
	}
}

// Interval returns the configured spacing.
func (l *Launcher) Interval() time.Duration {
	return l.interval
}

// Schedule arranges fire(i) for i in [0, n). fire runs on a timer goroutine
// and should only hand the start off to its owner. The returned handle is
// already done when n <= 0 or the launcher is stopped.
func (l *Launcher) Schedule(n int, fire func(i int)) *Handle {
	h := &Handle{
		total:    n,
		interval: l.interval,
		fire:     fire,
		done:     make(chan struct{}),
		owner:    l,
	}

	l.mu.Lock()
	if l.stopped || n <= 0 || fire == nil {
		l.mu.Unlock()
		h.finish()
		return h
	}
	l.handles[h] = struct{}{}
	l.mu.Unlock()

	h.mu.Lock()
	h.timer = time.AfterFunc(0, h.tick)
	h.mu.Unlock()
	return h
}

// Stop cancels every live handle. Later Schedule calls fire nothing.
func (l *Launcher) Stop() {
	l.mu.Lock()
	l.stopped = true
	live := make([]*Handle, 0, len(l.handles))
	for h := range l.handles {
		live = append(live, h)
	}
	l.mu.Unlock()

	for _, h := range live {
		h.CancelAll()
	}
}

func (l *Launcher) release(h *Handle) {
	l.mu.Lock()
	delete(l.handles, h)
	l.mu.Unlock()
}

// Handle controls one scheduled series of starts.
type Handle struct {
	total    int
	interval time.Duration
	fire     func(int)
	owner    *Launcher
	done     chan struct{}
	doneOnce sync.Once

	mu        sync.Mutex
	timer     *time.Timer
	next      int
	cancelled bool
}

// tick fires the next index and then arms the timer for the one after it, so
// fires never overlap and stay in index order.
func (h *Handle) tick() {
	h.mu.Lock()
	if h.cancelled || h.next >= h.total {
		h.mu.Unlock()
		return
	}
	i := h.next
	h.next++
	h.mu.Unlock()

	h.fire(i)

	h.mu.Lock()
	if h.next >= h.total {
		h.mu.Unlock()
		h.finish()
		return
	}
	if !h.cancelled {
		h.timer = time.AfterFunc(h.interval, h.tick)
	}
	h.mu.Unlock()
}

// CancelAll stops every start that has not fired. It is idempotent and safe
// to call concurrently with firing.
func (h *Handle) CancelAll() {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()
	h.finish()
}

// Fired returns how many starts have been handed to fire.
func (h *Handle) Fired() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

// Pending returns the indices that have not fired yet. After CancelAll they
// never will.
func (h *Handle) Pending() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int, 0, h.total-h.next)
	for i := h.next; i < h.total; i++ {
		out = append(out, i)
	}
	return out
}

// Done is closed once every start has fired or the handle was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) finish() {
	h.doneOnce.Do(func() {
		close(h.done)
		if h.owner != nil {
			h.owner.release(h)
		}
	})
}
