package reconcile

import "sync"

// queue is a thread-safe unbounded FIFO of notifications.
//
// Storage and catalog callbacks enqueue from whatever goroutine they run on;
// the single writer dequeues. The signal channel (buffer 1) coalesces wakeups
// so the Run loop can wait on it alongside ctx.Done().
type queue struct {
	mu     sync.Mutex
	items  []Notification
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{
		items:  make([]Notification, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends n. Returns false once the queue is closed.
func (q *queue) enqueue(n Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, n)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue removes the front notification without blocking.
func (q *queue) tryDequeue() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Notification{}, false
	}
	n := q.items[0]
	q.items[0] = Notification{} // release the payload
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return n, true
}

// wait returns a channel that fires when notifications may be available.
// It is closed when the queue closes.
func (q *queue) wait() <-chan struct{} {
	return q.signal
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
