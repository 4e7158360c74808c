package pipeline

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO with a blocking Pop. Push never blocks.
//
// Each queue has exactly one consumer in this package, so a single pending
// wake-up token is enough: Pop re-checks the slice after every wake-up and
// consumes everything available before waiting again.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Push appends v to the tail of the queue.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the head of the queue, waiting until an item is
// available or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	return q.PopFunc(ctx, nil)
}

// PopFunc is Pop, but calls claim with the item before the queue lock is
// released. A concurrent [Queue.Drain] therefore either returns the item or
// runs after claim did.
func (q *Queue[T]) PopFunc(ctx context.Context, claim func(T)) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			if claim != nil {
				claim(v)
			}
			q.mu.Unlock()
			return v, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued item in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
