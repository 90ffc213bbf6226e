package scheduler

import (
	"sync"
	"time"
)

// SlidingWindow admits at most limit events per rolling window. It keeps the
// admission timestamps of the current window; an admission is allowed once
// the oldest stamp has aged out.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
}

// NewSlidingWindow creates a limiter. A non-positive limit disables it.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{limit: limit, window: window}
}

// Allow reports whether an admission fits in the current window and records
// it when it does.
func (l *SlidingWindow) Allow() bool {
	admitted, _ := l.reserve(time.Now())
	return admitted
}

// Wait blocks until an admission is allowed or stop is closed.
func (l *SlidingWindow) Wait(stop <-chan struct{}) error {
	for {
		admitted, retry := l.reserve(time.Now())
		if admitted {
			return nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-stop:
			timer.Stop()
			return ErrSchedulerClosed
		case <-timer.C:
		}
	}
}

// reserve prunes expired stamps, then either records the admission or
// returns how long until the oldest stamp ages out.
func (l *SlidingWindow) reserve(now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit <= 0 {
		return true, 0
	}

	cutoff := now.Add(-l.window)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return true, 0
	}
	return false, l.stamps[0].Sub(cutoff)
}
