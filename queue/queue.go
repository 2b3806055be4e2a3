// Package queue provides the fixed-capacity ring queue used for pending
// commands, command arguments, and inbound CAN messages. Entries are 8-byte
// records copied by value, so a queue's contents survive independently of the
// caller's buffers.
//
// A Queue performs no locking of its own. The command engine mutates its two
// parallel queues under a single mutex so that every enqueue/dequeue touches
// both as one atomic operation; locking here would only hide a missing outer
// critical section.
package queue

// EntrySize is the fixed size of one queue record.
const EntrySize = 8

// MaxSize is the fixed capacity of every queue.
const MaxSize = 10

// Entry is one 8-byte queue record.
type Entry [EntrySize]byte

// Queue is a bounded FIFO ring of 8-byte entries. The zero value is an empty
// queue ready for use. Appends beyond capacity are rejected, never dropped
// silently in a way the caller cannot observe.
type Queue struct {
	content [MaxSize]Entry
	head    int
	size    int
}

// Size returns the number of entries currently queued.
func (q *Queue) Size() int {
	return q.size
}

// Empty reports whether the queue holds no entries.
func (q *Queue) Empty() bool {
	return q.size == 0
}

// Full reports whether the queue is at capacity.
func (q *Queue) Full() bool {
	return q.size == MaxSize
}

// Enqueue appends an entry at the back. It reports whether the entry was
// accepted; a full queue rejects the append.
func (q *Queue) Enqueue(e Entry) bool {
	if q.Full() {
		return false
	}
	q.content[(q.head+q.size)%MaxSize] = e
	q.size++
	return true
}

// EnqueueFront inserts an entry at the front, ahead of every queued entry.
// Used for auto-injected maintenance commands and for putting back a CAN
// response that a later cycle must consume.
func (q *Queue) EnqueueFront(e Entry) bool {
	if q.Full() {
		return false
	}
	q.head = (q.head - 1 + MaxSize) % MaxSize
	q.content[q.head] = e
	q.size++
	return true
}

// Dequeue removes and returns the front entry.
func (q *Queue) Dequeue() (Entry, bool) {
	if q.Empty() {
		return Entry{}, false
	}
	e := q.content[q.head]
	q.head = (q.head + 1) % MaxSize
	q.size--
	return e, true
}

// Peek returns the front entry without removing it.
func (q *Queue) Peek() (Entry, bool) {
	if q.Empty() {
		return Entry{}, false
	}
	return q.content[q.head], true
}

// At returns the entry at position i from the front without removing it.
func (q *Queue) At(i int) (Entry, bool) {
	if i < 0 || i >= q.size {
		return Entry{}, false
	}
	return q.content[(q.head+i)%MaxSize], true
}

// Clear discards all entries.
func (q *Queue) Clear() {
	q.head = 0
	q.size = 0
}
