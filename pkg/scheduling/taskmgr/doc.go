/*
Package taskmgr provides a cooperative task scheduler over a fixed pool of task slots.

A Manager owns a registry of slots allocated once at construction. Work is scheduled
into a free slot, linked into a pending queue ordered by remaining time, and executed
on whichever goroutine drives the manager through RunForBudget or Run. Nothing is
preempted and no two callbacks of one manager ever run at the same time.

Basic usage:

	m, err := taskmgr.New(taskmgr.Config{Name: "main", Capacity: 32})
	if err != nil {
		log.Fatal(err)
	}

	id, err := m.ScheduleFixedRate(100, taskmgr.Func(func() {
		// sample sensors
	}), tasktime.Millis)
	if err != nil {
		log.Printf("schedule: %v", err)
	}

	// elsewhere, on the scheduling goroutine
	for {
		if err := m.RunForBudget(10000); err != nil {
			log.Printf("pump: %v", err)
		}
	}

Time:

Delays are given with a tasktime.TimeUnit. Micros delays are tracked on the clock's
microsecond counter; Millis and Seconds on the millisecond counter. Both counters are
32 bits wide and wrap, so every comparison is made on a signed difference and delays
are clamped to tasktime.MaxDelay ticks.

Task IDs:

Each successful schedule returns a TaskID combining the slot index with a
generation counter that changes every time the slot is reused. CancelTask with an
id whose task already finished, or whose slot now belongs to another task, fails
with errors.ErrInvalidID instead of cancelling the wrong work.

Events:

An Event is a perpetual task that tells the manager when to poll it next and may be
triggered from any goroutine:

	type dataReady struct {
		taskmgr.BaseEvent
	}

	func (e *dataReady) TimeOfNextCheck() uint32 { return 250000 }
	func (e *dataReady) Exec()                   { drainBuffer() }

	ev := &dataReady{}
	m.RegisterEvent(ev)

	// from an I/O goroutine
	ev.MarkTriggeredAndNotify()

MarkTriggeredAndNotify sets an atomic flag and wakes the idling manager; it never
blocks and never takes the manager's lock. An event leaves the pool when it is
cancelled or calls SetCompleted(true).

Concurrency:

Schedule, cancel, Reset and the diagnostics methods are safe from any goroutine and
from inside callbacks. The slot being executed is unlinked before its callback runs
and the lock is not held across the call, so a callback may reschedule or cancel
itself. A panicking callback is recovered, reported as an errors.FaultError through
Config.OnError, the logger and metrics, and the pump carries on.

Configuration:

Config fields default sensibly; a YAML file can be loaded with LoadConfig and
converted with FileConfig.Config. Prometheus metrics are enabled through
Config.Metrics, and structured logs go to Config.Logger.
*/
package taskmgr
