package scheduler

import "time"

const maxBackoffShift = 30

// Backoff returns the exponential retry delay base * 2^retry, capped at max.
// A retry count of 0 yields the base delay.
func Backoff(base time.Duration, retry int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if retry < 0 {
		retry = 0
	}
	if retry > maxBackoffShift {
		return max
	}
	delay := base << retry
	if max > 0 && delay > max {
		return max
	}
	return delay
}
