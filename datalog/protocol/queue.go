package protocol

import (
	"context"
	"fmt"
	"sync"
)

// DequeueFunc delivers one batch and returns one result per item, in order.
type DequeueFunc[T, R any] func(batch []T) ([]R, error)

// BatchedQueue coalesces enqueued items into batches of at most batchSize
// and hands them to a DequeueFunc, running at most parallel batches at a
// time. Items within a batch keep submission order; with parallel > 1,
// batches may complete out of order.
type BatchedQueue[T, R any] struct {
	dequeue   DequeueFunc[T, R]
	batchSize int
	parallel  int

	mu      sync.Mutex
	queue   []pending[T, R]
	running int
	idle    []chan struct{}
}

type pending[T, R any] struct {
	value  T
	result chan Outcome[R]
}

// Outcome is the result of one enqueued item.
type Outcome[R any] struct {
	Value R
	Err   error
}

// NewBatchedQueue creates a queue. batchSize and parallel below 1 are
// treated as 1.
func NewBatchedQueue[T, R any](dequeue DequeueFunc[T, R], batchSize, parallel int) *BatchedQueue[T, R] {
	if batchSize < 1 {
		batchSize = 1
	}
	if parallel < 1 {
		parallel = 1
	}
	return &BatchedQueue[T, R]{
		dequeue:   dequeue,
		batchSize: batchSize,
		parallel:  parallel,
	}
}

// Enqueue adds value and returns a channel that receives its outcome once.
func (q *BatchedQueue[T, R]) Enqueue(value T) <-chan Outcome[R] {
	ch := make(chan Outcome[R], 1)
	q.mu.Lock()
	q.queue = append(q.queue, pending[T, R]{value: value, result: ch})
	q.mu.Unlock()

	go q.flush()
	return ch
}

// Do enqueues value and waits for its outcome.
func (q *BatchedQueue[T, R]) Do(ctx context.Context, value T) (R, error) {
	select {
	case out := <-q.Enqueue(value):
		return out.Value, out.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Wait blocks until the queue is empty and no batch is running.
func (q *BatchedQueue[T, R]) Wait(ctx context.Context) error {
	q.mu.Lock()
	if len(q.queue) == 0 && q.running == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idle = append(q.idle, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of items waiting for a batch.
func (q *BatchedQueue[T, R]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *BatchedQueue[T, R]) flush() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			if q.running == 0 {
				for _, ch := range q.idle {
					close(ch)
				}
				q.idle = nil
			}
			q.mu.Unlock()
			return
		}
		if q.running >= q.parallel {
			q.mu.Unlock()
			return
		}
		n := len(q.queue)
		if n > q.batchSize {
			n = q.batchSize
		}
		batch := make([]pending[T, R], n)
		copy(batch, q.queue[:n])
		// Clear the moved slots so delivered values can be collected
		for i := 0; i < n; i++ {
			q.queue[i] = pending[T, R]{}
		}
		q.queue = q.queue[n:]
		q.running++
		q.mu.Unlock()

		q.deliver(batch)

		q.mu.Lock()
		q.running--
		q.mu.Unlock()
	}
}

func (q *BatchedQueue[T, R]) deliver(batch []pending[T, R]) {
	values := make([]T, len(batch))
	for i, p := range batch {
		values[i] = p.value
	}

	results, err := q.dequeue(values)
	if err == nil && len(results) != len(batch) {
		err = fmt.Errorf("dequeue returned %d results for %d items", len(results), len(batch))
	}
	for i, p := range batch {
		if err != nil {
			p.result <- Outcome[R]{Err: err}
			continue
		}
		p.result <- Outcome[R]{Value: results[i]}
	}
}
