package dispatch

import (
	"context"
	"time"
)

// rollingWindow admits at most limit events in any span of length size. It
// keeps the admission times of the current span, oldest first.
type rollingWindow struct {
	limit  int
	size   time.Duration
	stamps []time.Time
}

func newRollingWindow(limit int, size time.Duration) *rollingWindow {
	return &rollingWindow{limit: limit, size: size, stamps: make([]time.Time, 0, limit)}
}

// delay drops admissions that left the span ending at now and reports how
// long until another one fits.
func (w *rollingWindow) delay(now time.Time) time.Duration {
	cut := now.Add(-w.size)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cut) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
	if len(w.stamps) < w.limit {
		return 0
	}
	return w.stamps[0].Sub(cut)
}

// throttle combines rolling windows. It is only used from the worker goroutine.
type throttle []*rollingWindow

// admit records an admission at now when every window has room and returns
// zero. Otherwise nothing is recorded and the longest wait is returned.
func (t throttle) admit(now time.Time) time.Duration {
	var wait time.Duration
	for _, w := range t {
		wait = max(wait, w.delay(now))
	}
	if wait > 0 {
		return wait
	}
	for _, w := range t {
		w.stamps = append(w.stamps, now)
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
