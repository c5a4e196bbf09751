package taskmgr

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/taskmgr/pkg/clock"
	tmctx "github.com/vnykmshr/taskmgr/pkg/common/context"
	tmerrors "github.com/vnykmshr/taskmgr/pkg/common/errors"
	"github.com/vnykmshr/taskmgr/pkg/logging"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/tasktime"
)

// Manager is a cooperative scheduler over a fixed pool of task slots.
//
// Callbacks only ever run inside RunForBudget (or Run) on the goroutine that
// calls it. Scheduling and cancellation may be called from any goroutine,
// including from inside a running callback. Events may be triggered from any
// goroutine without taking the manager's lock.
type Manager struct {
	name     string
	clock    clock.Clock
	idler    clock.Idler
	minPoll  uint32
	budget   uint32
	skew     uint32
	log      zerolog.Logger
	faultLog *logging.Throttle
	metrics  *schedulerMetrics
	onError  func(error)

	mu          sync.Mutex
	reg         registry
	queue       pendingQueue
	runningID   TaskID
	interruptFn func(code uint32)
	lastWake    uint32
	lastMicros  uint32
	lastMillis  uint32
	clockSeen   bool

	wake          *wakeSignal
	interrupted   atomic.Bool
	interruptCode atomic.Uint32
}

// New creates a Manager. All slot storage is allocated here.
func New(cfg Config) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "taskmgr").Logger()
	}

	return &Manager{
		name:      cfg.Name,
		clock:     cfg.Clock,
		idler:     cfg.Idler,
		minPoll:   cfg.MinPollMicros,
		budget:    cfg.LoopBudgetMicros,
		skew:      cfg.ClockToleranceMicros,
		log:       log,
		faultLog:  logging.NewThrottle(1, 5),
		metrics:   newSchedulerMetrics(cfg.Metrics, cfg.Name, cfg.Capacity),
		onError:   cfg.OnError,
		reg:       newRegistry(cfg.Capacity),
		queue:     newPendingQueue(),
		runningID: InvalidTaskID,
		wake:      newWakeSignal(),
	}, nil
}

// MustNew is like New but panics on invalid configuration.
func MustNew(cfg Config) *Manager {
	m, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// ScheduleOnce runs cb once, delay units from now.
func (m *Manager) ScheduleOnce(delay uint32, cb Callback, unit tasktime.TimeUnit) (TaskID, error) {
	return m.schedule("ScheduleOnce", delay, cb, unit, false)
}

// ScheduleFixedRate runs cb every interval units, starting one interval from
// now, until the task is cancelled.
func (m *Manager) ScheduleFixedRate(interval uint32, cb Callback, unit tasktime.TimeUnit) (TaskID, error) {
	if interval == 0 {
		return InvalidTaskID, tmerrors.NewValidationError("taskmgr", "interval", interval, "must be positive").
			WithHint("a zero interval would never yield the pump")
	}
	return m.schedule("ScheduleFixedRate", interval, cb, unit, true)
}

// Execute runs cb as soon as the pump gets to it.
func (m *Manager) Execute(cb Callback) (TaskID, error) {
	return m.schedule("Execute", 0, cb, tasktime.Micros, false)
}

func (m *Manager) schedule(op string, delay uint32, cb Callback, unit tasktime.TimeUnit, repeating bool) (TaskID, error) {
	if !cb.Valid() {
		return InvalidTaskID, tmerrors.NewValidationError("taskmgr", "callback", nil, "cannot be nil").
			WithHint("wrap work with Func or Exec")
	}
	ticks, micros := tasktime.Normalize(delay, unit)

	m.mu.Lock()
	index := m.reg.allocate()
	if index == nilIndex {
		m.mu.Unlock()
		return InvalidTaskID, m.poolExhausted(op)
	}
	nowUs, nowMs := m.clock.Micros(), m.clock.Millis()
	now := nowMs
	if micros {
		now = nowUs
	}
	id := m.reg.populate(index, cb, now+ticks, ticks, micros, repeating)
	m.queue.insert(&m.reg, index, nowUs, nowMs)
	used := m.reg.used
	m.mu.Unlock()

	m.metrics.taskScheduled(cb.kind, used)
	m.log.Debug().Stringer("task", id).Str("kind", cb.kind.String()).
		Uint32("delay", ticks).Bool("micros", micros).Bool("repeating", repeating).Msg("task scheduled")
	m.wake.notify()
	return id, nil
}

// RegisterEvent adds ev to the pool. The event is polled straight away and
// then at whatever interval its TimeOfNextCheck reports, until it is
// cancelled with CancelTask or marks itself completed.
func (m *Manager) RegisterEvent(ev Event) (TaskID, error) {
	if ev == nil {
		return InvalidTaskID, tmerrors.NewValidationError("taskmgr", "event", nil, "cannot be nil")
	}
	base := ev.eventBase()
	if !base.notifier.CompareAndSwap(nil, m.wake) {
		return InvalidTaskID, tmerrors.NewValidationError("taskmgr", "event", fmt.Sprintf("%T", ev), "already registered").
			WithHint("cancel the existing registration first")
	}
	base.completed.Store(false)

	m.mu.Lock()
	index := m.reg.allocate()
	if index == nilIndex {
		m.mu.Unlock()
		base.notifier.Store(nil)
		return InvalidTaskID, m.poolExhausted("RegisterEvent")
	}
	nowUs, nowMs := m.clock.Micros(), m.clock.Millis()
	id := m.reg.populate(index, eventCallback(ev), nowUs, m.minPoll, true, true)
	m.queue.insert(&m.reg, index, nowUs, nowMs)
	used := m.reg.used
	m.mu.Unlock()

	m.metrics.taskScheduled(kindEvent, used)
	m.log.Debug().Stringer("task", id).Str("kind", "event").Msg("event registered")
	m.wake.notify()
	return id, nil
}

func (m *Manager) poolExhausted(op string) error {
	m.metrics.exhausted()
	m.log.Warn().Str("op", op).Int("capacity", len(m.reg.slots)).Msg("task pool exhausted")
	return tmerrors.NewOperationError("taskmgr", op, tmerrors.ErrPoolExhausted).
		WithContext(fmt.Sprintf("all %d slots in use", len(m.reg.slots)))
}

// CancelTask stops the task. Once it returns nil the task never runs again;
// its slot is freed on the next pump. A cancelled event that is not executing
// is released at once and may be registered again straight away. Ids of tasks that already finished, were
// already cancelled or were never issued yield an error wrapping
// errors.ErrInvalidID and change nothing.
func (m *Manager) CancelTask(id TaskID) error {
	m.mu.Lock()
	ok := m.reg.requestCancel(id)
	if ok {
		if s := &m.reg.slots[id.index()]; s.callback.kind == kindEvent && !s.running {
			s.callback.event.eventBase().notifier.Store(nil)
			s.detached = true
		}
	}
	m.mu.Unlock()

	if !ok {
		m.log.Debug().Stringer("task", id).Msg("cancel of unknown task")
		return tmerrors.NewOperationError("taskmgr", "CancelTask", tmerrors.ErrInvalidID).WithContext(id.String())
	}
	m.metrics.taskCancelled()
	m.log.Debug().Stringer("task", id).Msg("task cancelled")
	m.wake.notify()
	return nil
}

// Reset cancels every task and event. Slots whose callback is currently
// executing are freed once it returns.
func (m *Manager) Reset() {
	m.mu.Lock()
	for i := range m.reg.slots {
		s := &m.reg.slots[i]
		if !s.inUse {
			continue
		}
		if s.running {
			s.pendingRemoval = true
			continue
		}
		m.release(i)
	}
	m.queue = newPendingQueue()
	used := m.reg.used
	m.mu.Unlock()

	m.metrics.slotFreed(used)
	m.wake.notify()
}

// SetInterruptCallback installs the function MarkInterrupted dispatches to.
func (m *Manager) SetInterruptCallback(fn func(code uint32)) {
	m.mu.Lock()
	m.interruptFn = fn
	m.mu.Unlock()
}

// MarkInterrupted records an external interrupt and wakes the pump, which
// hands code to the interrupt callback on the scheduling goroutine. Interrupts
// raised before the pump gets to them coalesce and the last code wins. Safe
// to call from any goroutine; never blocks.
func (m *Manager) MarkInterrupted(code uint32) {
	m.interruptCode.Store(code)
	m.interrupted.Store(true)
	m.wake.notify()
}

// Run pumps the manager until ctx is done, then returns ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, m.wake.notify)
	defer stop()

	for !tmctx.IsCanceled(ctx) {
		if err := m.RunForBudget(m.budget); err != nil && !errors.Is(err, tmerrors.ErrClockAnomaly) {
			return err
		}
	}
	return ctx.Err()
}

// RunForBudget runs due tasks and events for at most budget microseconds,
// idling when nothing is due. It always makes at least one pass, so pending
// cancellations are swept even with a zero budget.
//
// It returns an error wrapping errors.ErrClockAnomaly when the micros
// counter steps backwards; callback panics are reported through the logger,
// metrics and Config.OnError instead.
func (m *Manager) RunForBudget(budget uint32) error {
	start := m.clock.Micros()
	if err := m.checkClock(start); err != nil {
		return err
	}

	for {
		m.dispatchInterrupt()

		index, wait, pending := m.selectDue()
		if index != nilIndex {
			m.execute(index)
		}

		now := m.clock.Micros()
		if err := m.checkClock(now); err != nil {
			return err
		}
		elapsed := tasktime.Elapsed(start, now)
		if elapsed >= budget {
			return nil
		}
		if index != nilIndex {
			continue
		}

		idle := budget - elapsed
		if pending {
			if w := tasktime.ClampMicros(wait); w < idle {
				idle = w
			}
		}
		m.idler.IdleFor(idle, m.wake.ch)
	}
}

// checkClock compares now with the last reading taken by the pump. A micros
// reading that looks like a step back is accepted when the millis counter
// moved forward far enough to explain a wrap of more than 2^31 microseconds.
func (m *Manager) checkClock(now uint32) error {
	nowMs := m.clock.Millis()

	m.mu.Lock()
	last, lastMs, seen := m.lastMicros, m.lastMillis, m.clockSeen
	m.lastMicros, m.lastMillis, m.clockSeen = now, nowMs, true
	m.mu.Unlock()

	if !seen {
		return nil
	}
	back := -tasktime.Remaining(last, now)
	if back <= 0 || uint32(back) <= m.skew {
		return nil
	}
	forward := int64(tasktime.Elapsed(last, now))
	if advanced := int64(tasktime.Remaining(lastMs, nowMs)); (advanced+1)*1000 >= forward {
		return nil
	}

	m.metrics.clockAnomaly()
	err := tmerrors.NewOperationError("taskmgr", "RunForBudget", tmerrors.ErrClockAnomaly).
		WithContext(fmt.Sprintf("micros went back %d", back))
	m.log.Error().Err(err).Uint32("last", last).Uint32("now", now).Msg("clock anomaly")
	m.report(err)
	return err
}

func (m *Manager) dispatchInterrupt() {
	if !m.interrupted.Swap(false) {
		return
	}
	m.mu.Lock()
	fn := m.interruptFn
	m.mu.Unlock()
	if fn == nil {
		return
	}

	code := m.interruptCode.Load()
	defer func() {
		if r := recover(); r != nil {
			m.fault(InvalidTaskID, r)
		}
	}()
	fn(code)
}

// selectDue sweeps cancelled and completed slots, then unlinks and returns
// the first slot that is due. When nothing is due it returns the earliest
// remaining time and whether anything is pending at all.
func (m *Manager) selectDue() (index int, wait int64, pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if count := m.wake.count.Load(); count != m.lastWake {
		m.metrics.wokeUp(count - m.lastWake)
		m.lastWake = count
	}

	prev := nilIndex
	for cur := m.queue.head; cur != nilIndex; {
		s := &m.reg.slots[cur]
		next := s.next
		if s.pendingRemoval || (s.callback.kind == kindEvent && s.callback.event.eventBase().IsCompleted()) {
			m.queue.unlink(&m.reg, prev, cur)
			m.release(cur)
		} else {
			prev = cur
		}
		cur = next
	}
	m.metrics.slotFreed(m.reg.used)

	nowUs, nowMs := m.clock.Micros(), m.clock.Millis()
	earliest, ok := m.queue.peekEarliestRemaining(&m.reg, nowUs, nowMs)
	if !ok {
		return nilIndex, 0, false
	}
	if earliest <= 0 || m.reg.slots[m.queue.head].triggered() {
		index = m.queue.removeHead(&m.reg)
		m.reg.slots[index].running = true
		return index, 0, true
	}

	// Order is only as fresh as the last insertion, so look past the head.
	for cur := m.reg.slots[m.queue.head].next; cur != nilIndex; cur = m.reg.slots[cur].next {
		s := &m.reg.slots[cur]
		rem := s.remaining(nowUs, nowMs)
		if rem <= 0 || s.triggered() {
			m.queue.remove(&m.reg, cur)
			s.running = true
			return cur, 0, true
		}
		if rem < earliest {
			earliest = rem
		}
	}
	return nilIndex, earliest, true
}

func (s *taskSlot) triggered() bool {
	return s.callback.kind == kindEvent && s.callback.event.eventBase().IsTriggered()
}

// release frees a slot that is no longer linked.
func (m *Manager) release(index int) {
	s := &m.reg.slots[index]
	if s.callback.kind == kindEvent && !s.detached {
		s.callback.event.eventBase().notifier.Store(nil)
	}
	m.reg.free(index)
}

// execute runs the callback of a slot selectDue handed out, then re-arms or
// frees it.
func (m *Manager) execute(index int) {
	m.mu.Lock()
	s := &m.reg.slots[index]
	if s.pendingRemoval {
		// cancelled from another goroutine after selection
		m.release(index)
		m.mu.Unlock()
		return
	}
	cb := s.callback
	id := s.id(index)
	retrigger := s.retrigger
	s.retrigger = false
	outer := m.runningID
	m.runningID = id
	m.mu.Unlock()

	var started time.Time
	if m.metrics != nil {
		started = time.Now()
	}
	delay, failed := m.invoke(id, cb, retrigger)
	if m.metrics != nil {
		m.metrics.taskExecuted(cb.kind, time.Since(started), failed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningID = outer
	s.running = false

	nowUs, nowMs := m.clock.Micros(), m.clock.Millis()
	switch {
	case s.pendingRemoval:
		m.release(index)
	case cb.kind == kindEvent:
		base := cb.event.eventBase()
		if base.IsCompleted() {
			m.release(index)
			break
		}
		// A trigger raised while Exec ran waits out the minimum poll.
		if base.triggered.Swap(false) {
			s.retrigger = true
			delay = m.minPoll
		}
		if delay < m.minPoll {
			delay = m.minPoll
		}
		if delay > tasktime.MaxDelay {
			delay = tasktime.MaxDelay
		}
		s.interval = delay
		s.due = nowUs + delay
		m.queue.insert(&m.reg, index, nowUs, nowMs)
	case s.repeating:
		if s.micros {
			s.due = nowUs + s.interval
		} else {
			s.due = nowMs + s.interval
		}
		m.queue.insert(&m.reg, index, nowUs, nowMs)
	default:
		m.release(index)
	}
	m.metrics.slotFreed(m.reg.used)
}

// invoke calls the callback, converting a panic into a reported fault. For
// events it returns the delay until the next poll; retrigger carries a
// trigger deferred from the previous run.
func (m *Manager) invoke(id TaskID, cb Callback, retrigger bool) (delay uint32, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			failed = true
			m.fault(id, r)
		}
	}()

	if cb.kind != kindEvent {
		cb.run()
		return 0, false
	}

	base := cb.event.eventBase()
	before := base.triggered.Swap(false) || retrigger
	delay = cb.event.TimeOfNextCheck()
	during := base.triggered.Swap(false)
	if before || during {
		cb.event.Exec()
	}
	return delay, false
}

func (m *Manager) fault(id TaskID, recovered interface{}) {
	err := &tmerrors.FaultError{TaskID: uint32(id), Recovered: recovered, Stack: debug.Stack()}
	if ok, suppressed := m.faultLog.Allow(); ok {
		m.log.Error().Err(err).Stringer("task", id).Uint64("suppressed", suppressed).
			Str("stack", string(err.Stack)).Msg("task callback panicked")
	}
	m.report(err)
}

func (m *Manager) report(err error) {
	if m.onError != nil {
		m.onError(err)
	}
}

// Name returns the configured name.
func (m *Manager) Name() string {
	return m.name
}

// Capacity returns the number of slots in the pool.
func (m *Manager) Capacity() int {
	return len(m.reg.slots)
}

// UsedSlots returns the number of allocated slots, including slots whose
// cancellation has not been swept yet.
func (m *Manager) UsedSlots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.used
}

// RunningTask returns the task whose callback is executing, or InvalidTaskID.
func (m *Manager) RunningTask() TaskID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningID
}
