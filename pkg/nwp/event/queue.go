package event

import (
	"sync"
)

// Queue is a bounded FIFO of events captured in command context and
// handled later by the deferred worker.
type Queue struct {
	items   []*Event
	head    int
	count   int
	dropped int
	readyCh chan struct{}
	lock    sync.Mutex
}

// NewQueue creates a Queue holding at most size events.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{items: make([]*Event, size), readyCh: make(chan struct{}, 1)}
}

// Push appends ev. It returns false when the queue is full and ev is
// dropped.
func (q *Queue) Push(ev *Event) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.count == len(q.items) {
		q.dropped++
		return false
	}
	q.items[(q.head+q.count)%len(q.items)] = ev
	q.count++
	select {
	case q.readyCh <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest event.
func (q *Queue) Pop() (*Event, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.count == 0 {
		return nil, false
	}
	ev := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return ev, true
}

// Ready is signaled after Push.
func (q *Queue) Ready() <-chan struct{} {
	return q.readyCh
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.count
}

// Dropped returns the number of events refused because the queue was full.
func (q *Queue) Dropped() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.dropped
}

// Reset discards all queued events.
func (q *Queue) Reset() {
	q.lock.Lock()
	defer q.lock.Unlock()
	for i := range q.items {
		q.items[i] = nil
	}
	q.head, q.count = 0, 0
}
