package queue

import (
	"sync"
)

// ChangeQueue is an unbounded FIFO of mutations that failed to sync
// immediately. Delivery is at-least-once: items that fail processing are
// re-appended and retried on the next drain.
type ChangeQueue[T any] struct {
	mu      sync.Mutex
	pending []T
}

func New[T any]() *ChangeQueue[T] {
	return &ChangeQueue[T]{}
}

func (q *ChangeQueue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, item)
}

func (q *ChangeQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DrainAndProcess snapshots and clears the queue in one critical section,
// then invokes process on each item in enqueue order outside the lock.
// Failed items are re-appended at the end of the batch. Items enqueued by
// other callers during the drain are left for the next call. Returns the
// number of successfully processed items.
func (q *ChangeQueue[T]) DrainAndProcess(process func(T) error) int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	var failed []T
	processed := 0
	for _, item := range batch {
		if err := process(item); err != nil {
			failed = append(failed, item)
			continue
		}
		processed++
	}

	if len(failed) > 0 {
		q.mu.Lock()
		q.pending = append(q.pending, failed...)
		q.mu.Unlock()
	}

	return processed
}
