package job

import (
	"context"
	"time"
)

// Pace waits for delay in poll-sized steps and reports whether the full delay
// elapsed. It returns false as soon as cancelled reports true or ctx is done,
// so cancellation latency is bounded by poll.
func Pace(ctx context.Context, delay, poll time.Duration, cancelled func() bool) bool {
	if cancelled() || ctx.Err() != nil {
		return false
	}
	if delay <= 0 {
		return true
	}
	if poll <= 0 || poll > delay {
		poll = delay
	}

	deadline := time.Now().Add(delay)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if cancelled() {
			return false
		}
		if !time.Now().Before(deadline) {
			return true
		}
	}
}
