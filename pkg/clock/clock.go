// Package clock provides the counters and idle primitive the task manager
// runs against. Production code uses SystemClock and SleepIdler, tests inject
// a manual clock for deterministic behavior.
package clock

import "time"

// Clock supplies two free-running monotonic counters. Both wrap at 2^32 and
// callers must never assume otherwise.
type Clock interface {
	// Micros returns the microsecond counter.
	Micros() uint32

	// Millis returns the millisecond counter.
	Millis() uint32
}

// SystemClock implements Clock on top of the runtime monotonic clock.
type SystemClock struct {
	anchor time.Time
}

// NewSystemClock creates a SystemClock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{anchor: time.Now()}
}

// Micros returns microseconds since the anchor, truncated to 32 bits.
func (c *SystemClock) Micros() uint32 {
	return uint32(time.Since(c.anchor).Microseconds())
}

// Millis returns milliseconds since the anchor, truncated to 32 bits.
func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.anchor).Milliseconds())
}

// Idler suspends the scheduling context while nothing is due.
type Idler interface {
	// IdleFor returns after at most micros microseconds, or earlier once
	// wake becomes readable.
	IdleFor(micros uint32, wake <-chan struct{})
}

// SleepIdler parks the goroutine on a reusable timer.
type SleepIdler struct {
	timer *time.Timer
}

// NewSleepIdler creates a SleepIdler.
func NewSleepIdler() *SleepIdler {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &SleepIdler{timer: t}
}

// IdleFor implements Idler.
func (s *SleepIdler) IdleFor(micros uint32, wake <-chan struct{}) {
	if micros == 0 {
		return
	}
	s.timer.Reset(time.Duration(micros) * time.Microsecond)
	select {
	case <-s.timer.C:
	case <-wake:
		s.timer.Stop()
	}
}

// SpinIdler never sleeps; the engine busy-polls its queue instead.
type SpinIdler struct{}

// IdleFor implements Idler by returning immediately.
func (SpinIdler) IdleFor(uint32, <-chan struct{}) {}
