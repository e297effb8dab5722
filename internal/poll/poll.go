// Package poll provides the bounded, paced polling every wait in the engine
// is built on. There are no fixed sleeps: a probe runs immediately, then at
// most once per interval, until it reports done or the budget is spent.
package poll

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is returned when the budget elapses before the probe reports done.
var ErrTimeout = errors.New("poll: timed out")

// Probe observes the target once. An error means the state could not be
// observed this time; polling continues.
type Probe func() (done bool, err error)

// Result describes a finished poll.
type Result struct {
	Attempts int
	// Observed counts probes that returned without error.
	Observed int
	LastErr  error
	Elapsed  time.Duration
}

// NeverObserved reports whether every probe errored.
func (r Result) NeverObserved() bool {
	return r.Attempts > 0 && r.Observed == 0
}

// Until runs probe until it reports done, the timeout elapses, or ctx ends.
// It returns ErrTimeout on budget exhaustion and ctx.Err() on cancellation.
// The probe runs immediately, then once per interval, and one last time at
// the deadline when the next interval would overshoot it. A zero timeout
// still probes once.
func Until(ctx context.Context, interval, timeout time.Duration, probe Probe) (Result, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	start := time.Now()
	deadline := start.Add(timeout)

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Reserve()

	var res Result
	for {
		res.Attempts++
		done, err := probe()
		if err != nil {
			res.LastErr = err
		} else {
			res.Observed++
		}
		if done && err == nil {
			res.Elapsed = time.Since(start)
			return res, nil
		}

		left := Remaining(deadline)
		if left == 0 {
			res.Elapsed = time.Since(start)
			return res, ErrTimeout
		}
		wait := limiter.Reserve().Delay()
		if wait > left {
			wait = left
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Elapsed = time.Since(start)
			return res, ctx.Err()
		case <-timer.C:
		}
	}
}

// Detached returns a context that ignores the parent's cancellation but
// keeps its values, bounded by timeout. Waits inside a step use it so that
// a run cancellation is observed between steps rather than mid-step.
func Detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

// Remaining is the budget left before deadline, never negative.
func Remaining(deadline time.Time) time.Duration {
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}
