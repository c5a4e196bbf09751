package testutil

import (
	"sync"
	"sync/atomic"
	"time"
)

// ManualClock is a controllable clock.Clock for deterministic scheduler
// tests. Both counters advance together from one elapsed-time base; each can
// be moved on its own with SetMicros/SetMillis to exercise wraparound and
// backwards steps.
type ManualClock struct {
	mu         sync.Mutex
	elapsed    uint64
	microsBase uint32
	millisBase uint32
}

// NewManualClock creates a ManualClock with both counters at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// NewManualClockAt creates a ManualClock with the given starting readings.
func NewManualClockAt(micros, millis uint32) *ManualClock {
	return &ManualClock{microsBase: micros, millisBase: millis}
}

// Micros returns the microsecond counter.
func (m *ManualClock) Micros() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.microsBase + uint32(m.elapsed)
}

// Millis returns the millisecond counter.
func (m *ManualClock) Millis() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.millisBase + uint32(m.elapsed/1000)
}

// AdvanceMicros moves both counters forward by us microseconds.
func (m *ManualClock) AdvanceMicros(us uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed += uint64(us)
}

// Advance moves both counters forward by d, truncated to microseconds.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed += uint64(d.Microseconds())
}

// SetMicros makes Micros return v without touching the millis counter.
func (m *ManualClock) SetMicros(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.microsBase = v - uint32(m.elapsed)
}

// SetMillis makes Millis return v without touching the micros counter.
func (m *ManualClock) SetMillis(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.millisBase = v - uint32(m.elapsed/1000)
}

// AdvancingIdler implements clock.Idler by moving a ManualClock forward
// instead of sleeping, so a budget of one simulated second runs instantly.
// A pending wake returns immediately without advancing.
type AdvancingIdler struct {
	clock *ManualClock
	calls atomic.Int64
	total atomic.Uint64

	// OnIdle, if set, runs before the clock is advanced.
	OnIdle func(micros uint32)
}

// NewAdvancingIdler creates an idler driving clk.
func NewAdvancingIdler(clk *ManualClock) *AdvancingIdler {
	return &AdvancingIdler{clock: clk}
}

// IdleFor implements clock.Idler.
func (a *AdvancingIdler) IdleFor(micros uint32, wake <-chan struct{}) {
	a.calls.Add(1)
	select {
	case <-wake:
		return
	default:
	}
	if a.OnIdle != nil {
		a.OnIdle(micros)
	}
	a.total.Add(uint64(micros))
	a.clock.AdvanceMicros(micros)
}

// Calls returns how many times IdleFor was invoked.
func (a *AdvancingIdler) Calls() int64 {
	return a.calls.Load()
}

// Idled returns the total simulated microseconds spent idling.
func (a *AdvancingIdler) Idled() uint64 {
	return a.total.Load()
}
