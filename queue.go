package streams

// sizedQueueEntry is one (chunk, size) pair held by a [sizedQueue].
type sizedQueueEntry struct {
	value any
	size  float64
}

// sizedQueue is the ordered buffer of (chunk, size) pairs a controller
// enqueues into and a reader/sink drains from. It is not safe for
// concurrent use; callers hold the owning stream/controller's mutex for
// the duration of any call.
type sizedQueue struct {
	entries []sizedQueueEntry
	total   float64
}

// enqueue appends value with the given size. size must be finite and
// non-negative; callers validate via a queuing [Strategy] before calling
// this, since a bad size function must error the *stream*, not panic here.
func (q *sizedQueue) enqueue(value any, size float64) {
	q.entries = append(q.entries, sizedQueueEntry{value: value, size: size})
	q.total += size
}

// dequeue removes and returns the head entry. It panics if the queue is
// empty; callers must check length first.
func (q *sizedQueue) dequeue() sizedQueueEntry {
	e := q.entries[0]
	q.entries = q.entries[1:]
	q.total -= e.size
	if len(q.entries) == 0 {
		// Snap to zero to avoid floating-point drift.
		q.total = 0
	} else if q.total < 0 {
		q.total = 0
	}
	return e
}

// peek returns the head entry without removing it. ok is false if empty.
func (q *sizedQueue) peek() (entry sizedQueueEntry, ok bool) {
	if len(q.entries) == 0 {
		return sizedQueueEntry{}, false
	}
	return q.entries[0], true
}

func (q *sizedQueue) len() int { return len(q.entries) }

// reset empties the queue and snaps total back to zero.
func (q *sizedQueue) reset() {
	q.entries = nil
	q.total = 0
}
