package taskmgr

import "sync/atomic"

// Event is a perpetual task that is polled at an interval it reports itself
// and can also be triggered from any goroutine.
//
// Implementations embed BaseEvent and are registered by pointer:
//
//	type buttonEvent struct {
//		taskmgr.BaseEvent
//		pressed atomic.Bool
//	}
//
//	func (e *buttonEvent) TimeOfNextCheck() uint32 {
//		e.SetTriggered(e.pressed.Swap(false))
//		return 10000
//	}
//
//	func (e *buttonEvent) Exec() { ... }
type Event interface {
	Executable

	// TimeOfNextCheck is called each time the event is polled. It returns the
	// microseconds until the next poll and may call SetTriggered(true) to have
	// Exec run in this cycle.
	TimeOfNextCheck() uint32

	eventBase() *BaseEvent
}

// BaseEvent holds the state shared between an event and the manager it is
// registered with. It must not be copied after registration.
type BaseEvent struct {
	triggered atomic.Bool
	completed atomic.Bool
	notifier  atomic.Pointer[wakeSignal]
}

func (b *BaseEvent) eventBase() *BaseEvent { return b }

// SetTriggered sets or clears the triggered flag without waking the manager.
// It is meant to be called from TimeOfNextCheck.
func (b *BaseEvent) SetTriggered(triggered bool) {
	b.triggered.Store(triggered)
}

// IsTriggered reports whether Exec is pending.
func (b *BaseEvent) IsTriggered() bool {
	return b.triggered.Load()
}

// MarkTriggeredAndNotify flags the event as triggered and asks the manager to
// re-scan as soon as possible. It is safe to call from any goroutine, never
// blocks and never allocates.
func (b *BaseEvent) MarkTriggeredAndNotify() {
	b.triggered.Store(true)
	if w := b.notifier.Load(); w != nil {
		w.notify()
	}
}

// SetCompleted marks the event as finished; the manager unregisters it on its
// next pass and frees the slot.
func (b *BaseEvent) SetCompleted(completed bool) {
	b.completed.Store(completed)
	if completed {
		if w := b.notifier.Load(); w != nil {
			w.notify()
		}
	}
}

// IsCompleted reports whether the event asked to be unregistered.
func (b *BaseEvent) IsCompleted() bool {
	return b.completed.Load()
}

// wakeSignal is the only state written from other goroutines: a counter the
// engine compares between passes plus a one-slot channel the idler selects on.
type wakeSignal struct {
	count atomic.Uint32
	ch    chan struct{}
}

func newWakeSignal() *wakeSignal {
	return &wakeSignal{ch: make(chan struct{}, 1)}
}

func (w *wakeSignal) notify() {
	w.count.Add(1)
	select {
	case w.ch <- struct{}{}:
	default:
	}
}
