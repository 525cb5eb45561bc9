package application

import (
	"context"
	"slices"
	"sync"
)

// taskQueue is the FIFO of confirmed tasks waiting for the dispatch worker.
type taskQueue struct {
	mu    sync.Mutex
	ids   []int64
	ready chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{ready: make(chan struct{}, 1)}
}

// push appends the ids that are not already queued and returns how many it added.
func (q *taskQueue) push(ids []int64) int {
	q.mu.Lock()
	added := 0
	for _, id := range ids {
		if slices.Contains(q.ids, id) {
			continue
		}
		q.ids = append(q.ids, id)
		added++
	}
	q.mu.Unlock()

	if added > 0 {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return added
}

// pop blocks until a task is queued or ctx is done.
func (q *taskQueue) pop(ctx context.Context) (int64, bool) {
	for {
		q.mu.Lock()
		if len(q.ids) > 0 {
			id := q.ids[0]
			q.ids = q.ids[1:]
			q.mu.Unlock()
			return id, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return 0, false
		}
	}
}

// len returns the number of queued tasks.
func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
