package coordinator

import (
	"context"
	"sync"
)

// workQueue is a FIFO queue of tenant ids with deduplication: a tenant
// already queued is not queued twice, and a tenant re-added while its
// job is being processed is marked dirty and requeued once the worker
// finishes.
type workQueue struct {
	mu sync.Mutex

	queue      []string
	processing map[string]bool
	dirty      map[string]bool

	// cond wakes blocked Get calls
	cond *sync.Cond

	shuttingDown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		processing: make(map[string]bool),
		dirty:      make(map[string]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues a tenant unless it is already waiting.
func (q *workQueue) Add(tenantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}
	if q.processing[tenantID] {
		q.dirty[tenantID] = true
		return
	}
	for _, queued := range q.queue {
		if queued == tenantID {
			return
		}
	}
	q.queue = append(q.queue, tenantID)
	q.cond.Signal()
}

// Get blocks until a tenant is available or the context ends. The
// second return value is false on shutdown or cancellation.
func (q *workQueue) Get(ctx context.Context) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.shuttingDown {
		select {
		case <-ctx.Done():
			return "", false
		default:
		}

		// race a watcher goroutine against the normal cond wakeup so a
		// cancelled context unblocks Wait
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)

		select {
		case <-ctx.Done():
			return "", false
		default:
		}
	}

	if q.shuttingDown && len(q.queue) == 0 {
		return "", false
	}

	tenantID := q.queue[0]
	q.queue = q.queue[1:]
	q.processing[tenantID] = true
	return tenantID, true
}

// Done releases a tenant taken via Get, requeueing it when it was
// re-added in the meantime.
func (q *workQueue) Done(tenantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, tenantID)
	if q.dirty[tenantID] {
		delete(q.dirty, tenantID)
		q.queue = append(q.queue, tenantID)
		q.cond.Signal()
	}
}

// Len returns the number of waiting tenants.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Shutdown unblocks all waiters and rejects further Adds.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.cond.Broadcast()
}
