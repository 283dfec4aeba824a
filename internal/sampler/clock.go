package sampler

import "time"

// Clock abstracts time for the sampler so tests can inject deterministic
// readings. The production clock is the system clock; values returned by Now
// carry Go's monotonic reading, and Since computes deltas from it, so
// durations are immune to wall-clock jumps.
type Clock interface {
	// Now returns the current instant, carrying a monotonic reading.
	Now() time.Time
	// Since returns the elapsed time since t using the monotonic reading.
	Since(t time.Time) time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// SystemClock returns the production clock.
func SystemClock() Clock {
	return systemClock{}
}
