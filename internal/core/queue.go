package core

import (
	"sync"

	"github.com/gammazero/deque"
)

// intentQueue is a FIFO of intents with a wake-up signal for the single
// consumer. push never blocks.
type intentQueue struct {
	mu     sync.Mutex
	items  deque.Deque[Intent]
	limit  int
	closed bool

	ready chan struct{}
}

func newIntentQueue(limit int) *intentQueue {
	return &intentQueue{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// push appends in. Unless force is set, it fails with ErrQueueFull once the
// queue holds limit items.
func (q *intentQueue) push(in Intent, force bool) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrHubStopped
	}
	if !force && q.limit > 0 && q.items.Len() >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items.PushBack(in)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

func (q *intentQueue) pop() (Intent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.items.PopFront(), true
}

func (q *intentQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// close rejects further pushes and returns whatever was still queued.
func (q *intentQueue) close() []Intent {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := make([]Intent, 0, q.items.Len())
	for q.items.Len() > 0 {
		rest = append(rest, q.items.PopFront())
	}
	return rest
}
