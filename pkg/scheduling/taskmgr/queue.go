package taskmgr

// pendingQueue links in-use slots in ascending order of remaining time as
// measured when each was inserted. It owns no storage; links live in the
// registry's slots.
type pendingQueue struct {
	head int
}

func newPendingQueue() pendingQueue {
	return pendingQueue{head: nilIndex}
}

// insert places index before the first slot that is due strictly later, so
// slots due at the same time keep their insertion order.
func (q *pendingQueue) insert(r *registry, index int, nowMicros, nowMillis uint32) {
	s := &r.slots[index]
	rem := s.remaining(nowMicros, nowMillis)

	prev := nilIndex
	cur := q.head
	for cur != nilIndex {
		if r.slots[cur].remaining(nowMicros, nowMillis) > rem {
			break
		}
		prev = cur
		cur = r.slots[cur].next
	}

	s.next = cur
	if prev == nilIndex {
		q.head = index
	} else {
		r.slots[prev].next = index
	}
}

// remove unlinks index and reports whether it was linked.
func (q *pendingQueue) remove(r *registry, index int) bool {
	prev := nilIndex
	for cur := q.head; cur != nilIndex; cur = r.slots[cur].next {
		if cur == index {
			q.unlink(r, prev, cur)
			return true
		}
		prev = cur
	}
	return false
}

// removeHead unlinks and returns the head, or nilIndex when empty.
func (q *pendingQueue) removeHead(r *registry) int {
	head := q.head
	if head != nilIndex {
		q.unlink(r, nilIndex, head)
	}
	return head
}

func (q *pendingQueue) unlink(r *registry, prev, index int) {
	next := r.slots[index].next
	if prev == nilIndex {
		q.head = next
	} else {
		r.slots[prev].next = next
	}
	r.slots[index].next = nilIndex
}

// peekEarliestRemaining returns the head's remaining microseconds.
func (q *pendingQueue) peekEarliestRemaining(r *registry, nowMicros, nowMillis uint32) (int64, bool) {
	if q.head == nilIndex {
		return 0, false
	}
	return r.slots[q.head].remaining(nowMicros, nowMillis), true
}

func (q *pendingQueue) count(r *registry) int {
	n := 0
	for cur := q.head; cur != nilIndex; cur = r.slots[cur].next {
		n++
	}
	return n
}
