package ecreq

// Queue is a plain FIFO of pending requests. It carries no internal
// locking: per spec.md §5, callers serialize access to per-slave queues
// under a master-wide mutex, and the cyclic task itself never blocks on
// anything queue-related.
type Queue[T any] struct {
	items []T
}

// Push enqueues a request at the tail, the way an external producer submits
// work.
func (q *Queue[T]) Push(item T) {
	q.items = append(q.items, item)
}

// Pop dequeues and returns the head request, ok=false if the queue is
// empty. This is the "external queue" dequeue pattern: ownership of the
// request moves to the caller.
func (q *Queue[T]) Pop() (item T, ok bool) {
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the number of queued requests.
func (q *Queue[T]) Len() int { return len(q.items) }

// Each iterates queued requests front to back without dequeuing them. It is
// the "internal queue" scan pattern (spec.md §4.1.2): a slave-config-owned
// queue is only scanned and flagged busy, never drained, so the config can
// keep resubmitting into the same slot.
func (q *Queue[T]) Each(f func(T) bool) {
	for _, item := range q.items {
		if !f(item) {
			return
		}
	}
}
