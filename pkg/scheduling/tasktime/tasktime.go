// Package tasktime implements wraparound-safe arithmetic over the 32-bit
// counters supplied by a clock.Clock.
//
// A due time is an absolute counter reading. The distance to it is always
// computed as a modular difference reinterpreted as signed, so comparisons
// remain correct across counter overflow as long as no delay exceeds half the
// counter range.
package tasktime

import (
	"fmt"
	"math"
	"strings"
)

// TimeUnit tells the scheduler how to interpret a delay or interval.
type TimeUnit uint8

const (
	// Micros schedules against the microsecond counter.
	Micros TimeUnit = iota
	// Millis schedules against the millisecond counter.
	Millis
	// Seconds schedules against the millisecond counter, pre-multiplied by 1000.
	Seconds
)

// MaxDelay is the largest number of native ticks that still projects as a
// future deadline.
const MaxDelay = math.MaxInt32

func (u TimeUnit) String() string {
	switch u {
	case Micros:
		return "micros"
	case Millis:
		return "millis"
	case Seconds:
		return "seconds"
	default:
		return fmt.Sprintf("TimeUnit(%d)", uint8(u))
	}
}

// ParseTimeUnit accepts the long names produced by String as well as the
// usual short forms "us", "ms" and "s".
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "us", "micros", "microseconds":
		return Micros, nil
	case "ms", "millis", "milliseconds":
		return Millis, nil
	case "s", "sec", "seconds":
		return Seconds, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", s)
}

// Remaining returns due-now as a signed tick count. A negative result means
// the deadline has passed.
func Remaining(now, due uint32) int32 {
	return int32(due - now)
}

// IsDue reports whether due has been reached at now.
func IsDue(now, due uint32) bool {
	return Remaining(now, due) <= 0
}

// Elapsed returns the ticks from since to now, modulo 2^32.
func Elapsed(since, now uint32) uint32 {
	return now - since
}

// Normalize converts a delay expressed in unit into native ticks and reports
// which counter they belong to. Values that would not fit are clamped to
// MaxDelay.
func Normalize(delay uint32, unit TimeUnit) (ticks uint32, micros bool) {
	switch unit {
	case Micros:
		return saturate(uint64(delay)), true
	case Seconds:
		return saturate(uint64(delay) * 1000), false
	default:
		return saturate(uint64(delay)), false
	}
}

// ToMicros converts a remaining tick count on either counter into
// microseconds so slots registered on different counters can be ordered.
func ToMicros(remaining int32, micros bool) int64 {
	if micros {
		return int64(remaining)
	}
	return int64(remaining) * 1000
}

// ClampMicros narrows a microsecond span to the range accepted by an idler.
func ClampMicros(us int64) uint32 {
	switch {
	case us <= 0:
		return 0
	case us > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(us)
	}
}

func saturate(v uint64) uint32 {
	if v > MaxDelay {
		return MaxDelay
	}
	return uint32(v)
}
