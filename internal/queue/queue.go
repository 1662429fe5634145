// Package queue provides the bounded FIFO of ready descriptors shared
// between the dispatcher and the worker pool.
package queue

import "sync"

// Shutdown is the sentinel descriptor that tells a worker to exit its
// loop. It is never a valid socket fd.
const Shutdown = -1

// Queue is a fixed-capacity FIFO of file descriptors. Enqueue never
// blocks; Dequeue blocks until an element or Close. The dispatcher is
// the only producer during normal operation, the workers the only
// consumers, but the implementation allows any number of either.
type Queue struct {
	mu     sync.Mutex
	nonEmp sync.Cond

	buf    []int
	head   int
	count  int
	closed bool
}

// New returns a queue holding at most capacity descriptors. Capacity
// must be at least one.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{buf: make([]int, capacity)}
	q.nonEmp.L = &q.mu
	return q
}

// Enqueue appends fd if there is room and reports whether it was
// accepted. A full or closed queue rejects the descriptor so the
// caller can keep it armed in the readiness set and retry later.
func (q *Queue) Enqueue(fd int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.count == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = fd
	q.count++
	q.nonEmp.Signal()
	return true
}

// Dequeue removes and returns the oldest descriptor, blocking while
// the queue is empty. After Close it returns Shutdown, false once the
// queue drains.
func (q *Queue) Dequeue() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == 0 {
		if q.closed {
			return Shutdown, false
		}
		q.nonEmp.Wait()
	}
	fd := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return fd, true
}

// Len returns the number of queued descriptors.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Close marks the queue closed and wakes every blocked consumer.
// Elements already queued are still delivered; once drained, Dequeue
// returns the Shutdown sentinel. Closing twice is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.nonEmp.Broadcast()
}
