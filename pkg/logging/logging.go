// Package logging configures taskmgr's structured logging.
//
// Components take a zerolog.Logger directly; this package only builds one
// from a small config and provides a throttle for log lines that may repeat
// on every pump.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config selects level and output format.
type Config struct {
	// Level is one of trace, debug, info, warn, error, disabled. Empty means info.
	Level string

	// Console renders human-readable lines instead of JSON.
	Console bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New builds a logger from cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, returning def for empty or
// unknown input.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return def
	}
	return lvl
}

// Throttle limits how often a repeating log line is emitted and counts the
// lines it swallowed.
type Throttle struct {
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

// NewThrottle allows perSecond lines on average with the given burst.
func NewThrottle(perSecond float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether a line may be written now. When it returns true it
// also returns how many lines were suppressed since the last allowed one.
func (t *Throttle) Allow() (bool, uint64) {
	if t.limiter.Allow() {
		return true, t.suppressed.Swap(0)
	}
	t.suppressed.Add(1)
	return false, 0
}
