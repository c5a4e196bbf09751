package taskmgr

import (
	"fmt"
	"math"

	"github.com/vnykmshr/taskmgr/pkg/scheduling/tasktime"
)

// TaskID identifies a scheduled task. It packs the slot index with the
// slot's allocation generation, so an id kept after its task finished does
// not resolve to whatever task reuses the slot later.
type TaskID uint32

// InvalidTaskID is never returned by a successful schedule call.
const InvalidTaskID TaskID = math.MaxUint32

// MaxCapacity is the largest pool a Manager can be built with.
const MaxCapacity = 0xFFFF

const nilIndex = -1

func makeTaskID(index int, generation uint16) TaskID {
	return TaskID(uint32(generation)<<16 | uint32(index))
}

func (id TaskID) index() int { return int(uint32(id) & 0xFFFF) }

func (id TaskID) generation() uint16 { return uint16(uint32(id) >> 16) }

func (id TaskID) String() string {
	if id == InvalidTaskID {
		return "task(invalid)"
	}
	return fmt.Sprintf("task(%d/%d)", id.index(), id.generation())
}

// taskSlot is one registry entry. Free slots carry no callback.
type taskSlot struct {
	callback       Callback
	due            uint32
	interval       uint32
	next           int
	generation     uint16
	inUse          bool
	micros         bool
	repeating      bool
	pendingRemoval bool
	running        bool

	// event slots only
	detached  bool
	retrigger bool
}

func (s *taskSlot) id(index int) TaskID {
	return makeTaskID(index, s.generation)
}

// remaining projects the slot's due time against the counter it was
// registered on and returns microseconds, negative once overdue.
func (s *taskSlot) remaining(nowMicros, nowMillis uint32) int64 {
	if s.micros {
		return tasktime.ToMicros(tasktime.Remaining(nowMicros, s.due), true)
	}
	return tasktime.ToMicros(tasktime.Remaining(nowMillis, s.due), false)
}

// registry owns all slot storage. It is sized once and never grows.
type registry struct {
	slots []taskSlot
	used  int
}

func newRegistry(capacity int) registry {
	slots := make([]taskSlot, capacity)
	for i := range slots {
		slots[i].next = nilIndex
	}
	return registry{slots: slots}
}

// allocate reserves the first free slot and bumps its generation, or returns
// nilIndex when the pool is exhausted.
func (r *registry) allocate() int {
	for i := range r.slots {
		s := &r.slots[i]
		if s.inUse {
			continue
		}
		s.generation++
		if s.generation == 0 {
			s.generation = 1
		}
		s.inUse = true
		r.used++
		return i
	}
	return nilIndex
}

func (r *registry) populate(index int, cb Callback, due, interval uint32, micros, repeating bool) TaskID {
	s := &r.slots[index]
	s.callback = cb
	s.due = due
	s.interval = interval
	s.micros = micros
	s.repeating = repeating
	s.pendingRemoval = false
	s.running = false
	s.detached = false
	s.retrigger = false
	s.next = nilIndex
	return s.id(index)
}

func (r *registry) free(index int) {
	s := &r.slots[index]
	if !s.inUse {
		return
	}
	s.callback = Callback{}
	s.inUse = false
	s.pendingRemoval = false
	s.running = false
	s.repeating = false
	s.detached = false
	s.retrigger = false
	s.next = nilIndex
	r.used--
}

// resolve maps id to a slot that is still owned by it and not already
// cancelled.
func (r *registry) resolve(id TaskID) (int, bool) {
	if id == InvalidTaskID {
		return nilIndex, false
	}
	index := id.index()
	if index >= len(r.slots) {
		return nilIndex, false
	}
	s := &r.slots[index]
	if !s.inUse || s.pendingRemoval || s.generation != id.generation() {
		return nilIndex, false
	}
	return index, true
}

// requestCancel flags the slot for removal. Unlinking and freeing happen on
// the engine's next pass because the slot may be executing right now.
func (r *registry) requestCancel(id TaskID) bool {
	index, ok := r.resolve(id)
	if !ok {
		return false
	}
	r.slots[index].pendingRemoval = true
	return true
}
