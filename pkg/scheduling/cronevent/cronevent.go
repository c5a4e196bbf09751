// Package cronevent adapts cron expressions to taskmgr events.
//
// An Event computes the next activation of its schedule on every poll and
// asks the manager to check back no later than that, so a cron job costs one
// slot and no goroutine.
package cronevent

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	tmerrors "github.com/vnykmshr/taskmgr/pkg/common/errors"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/taskmgr"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/tasktime"
)

// DefaultMaxPoll bounds how long the event sleeps between wall-clock checks,
// so a stepped system clock is noticed within this interval.
const DefaultMaxPoll = 30 * time.Second

// Accepts an optional leading seconds field plus the @hourly style descriptors.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Option configures an Event.
type Option func(*Event)

// WithLocation evaluates the expression in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Event) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithNow replaces time.Now, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Event) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMaxPoll overrides DefaultMaxPoll. Values are capped to what a 32-bit
// microsecond poll delay can express.
func WithMaxPoll(d time.Duration) Option {
	return func(e *Event) {
		if d > 0 {
			e.maxPoll = d
		}
	}
}

// WithMaxRuns completes the event after n executions (0 = unlimited).
func WithMaxRuns(n int) Option {
	return func(e *Event) {
		if n > 0 {
			e.maxRuns = n
		}
	}
}

// Event runs an Executable whenever its cron schedule activates.
type Event struct {
	taskmgr.BaseEvent

	expr     string
	schedule cron.Schedule
	task     taskmgr.Executable
	loc      *time.Location
	now      func() time.Time
	maxPoll  time.Duration
	maxRuns  int

	mu   sync.Mutex
	next time.Time
	runs int
}

// New parses expr and returns an event ready for Manager.RegisterEvent.
func New(expr string, task taskmgr.Executable, opts ...Option) (*Event, error) {
	if task == nil {
		return nil, tmerrors.NewValidationError("cronevent", "task", nil, "cannot be nil")
	}
	schedule, err := parse(expr)
	if err != nil {
		return nil, err
	}

	e := &Event{
		expr:     expr,
		schedule: schedule,
		task:     task,
		loc:      time.Local,
		now:      time.Now,
		maxPoll:  DefaultMaxPoll,
	}
	for _, opt := range opts {
		opt(e)
	}
	if limit := time.Duration(tasktime.MaxDelay) * time.Microsecond; e.maxPoll > limit {
		e.maxPoll = limit
	}
	e.next = e.schedule.Next(e.now().In(e.loc))
	return e, nil
}

// Validate reports whether expr would be accepted by New.
func Validate(expr string) error {
	_, err := parse(expr)
	return err
}

// NextRuns lists the next n activations of expr after from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	schedule, err := parse(expr)
	if err != nil {
		return nil, err
	}
	runs := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = schedule.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t)
	}
	return runs, nil
}

func parse(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, tmerrors.NewValidationError("cronevent", "expression", expr, "cannot be empty")
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, tmerrors.NewValidationError("cronevent", "expression", expr, err.Error()).
			WithHint("use 5 fields, 6 with leading seconds, or a descriptor such as @hourly")
	}
	return schedule, nil
}

// TimeOfNextCheck implements taskmgr.Event. It triggers the event once the
// pending activation has been reached and returns the microseconds until the
// following one, capped at the max poll interval.
func (e *Event) TimeOfNextCheck() uint32 {
	now := e.now().In(e.loc)

	e.mu.Lock()
	if e.next.IsZero() {
		// schedule can never fire again
		e.mu.Unlock()
		e.SetCompleted(true)
		return uint32(e.maxPoll.Microseconds())
	}
	if !now.Before(e.next) {
		e.SetTriggered(true)
		e.next = e.schedule.Next(now)
	}
	wait := e.next.Sub(now)
	e.mu.Unlock()

	if wait > e.maxPoll || wait < 0 {
		wait = e.maxPoll
	}
	return uint32(wait.Microseconds())
}

// Exec implements taskmgr.Event.
func (e *Event) Exec() {
	e.task.Exec()

	e.mu.Lock()
	e.runs++
	done := e.maxRuns > 0 && e.runs >= e.maxRuns
	e.mu.Unlock()

	if done {
		e.SetCompleted(true)
	}
}

// Next returns the pending activation time.
func (e *Event) Next() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next
}

// Runs returns how many times the task has executed.
func (e *Event) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// Expression returns the cron expression the event was built from.
func (e *Event) Expression() string {
	return e.expr
}

func (e *Event) String() string {
	return fmt.Sprintf("cron(%s)", e.expr)
}
