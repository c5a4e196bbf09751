package taskmgr

import "strings"

// TaskInfo is a read-only view of one linked slot.
type TaskInfo struct {
	ID              TaskID
	Kind            string
	RemainingMicros int64
	Repeating       bool
	Micros          bool
	InUse           bool
	PendingRemoval  bool
}

// IsMillis reports whether the task is scheduled on the millis counter.
func (t TaskInfo) IsMillis() bool {
	return !t.Micros
}

// Walk visits linked slots in queue order, not slot order, until fn returns
// false. A callback that is executing at the time is not linked and is not
// visited. fn runs with the manager locked and must not call back into it.
func (m *Manager) Walk(fn func(TaskInfo) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowUs, nowMs := m.clock.Micros(), m.clock.Millis()
	for cur := m.queue.head; cur != nilIndex; cur = m.reg.slots[cur].next {
		s := &m.reg.slots[cur]
		info := TaskInfo{
			ID:              s.id(cur),
			Kind:            s.callback.kind.String(),
			RemainingMicros: s.remaining(nowUs, nowMs),
			Repeating:       s.repeating,
			Micros:          s.micros,
			InUse:           s.inUse,
			PendingRemoval:  s.pendingRemoval,
		}
		if !fn(info) {
			return
		}
	}
}

// Snapshot returns the Walk traversal as a slice.
func (m *Manager) Snapshot() []TaskInfo {
	var out []TaskInfo
	m.Walk(func(t TaskInfo) bool {
		out = append(out, t)
		return true
	})
	return out
}

// SlotSummary renders one character per slot in index order: F free,
// U one-shot, R repeating, E event, C cancellation pending.
func (m *Manager) SlotSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.Grow(len(m.reg.slots))
	for i := range m.reg.slots {
		s := &m.reg.slots[i]
		switch {
		case !s.inUse:
			b.WriteByte('F')
		case s.pendingRemoval:
			b.WriteByte('C')
		case s.callback.kind == kindEvent:
			b.WriteByte('E')
		case s.repeating:
			b.WriteByte('R')
		default:
			b.WriteByte('U')
		}
	}
	return b.String()
}
