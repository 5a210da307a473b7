package codec

import (
	"sync"
	"time"

	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/eapache/queue"
)

// Queue - FIFO between the callback context and a single consumer.
// Push never blocks.
type Queue[T any] struct {
	mu     sync.Mutex
	items  *queue.Queue
	notify chan struct{}
	closed bool
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{items: queue.New(), notify: make(chan struct{})}
}

// Push returns false if the queue is closed
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items.Add(v)

	close(q.notify)
	q.notify = make(chan struct{})
	return true
}

// Pop waits up to timeout for the head item, zero timeout waits forever.
// Returns ErrClosed once the queue is closed, even if items are left.
func (q *Queue[T]) Pop(timeout time.Duration) (v T, err error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return v, core.ErrClosed
		}
		if q.items.Length() > 0 {
			v = q.items.Remove().(T)
			q.mu.Unlock()
			return v, nil
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-notify:
		case <-timer:
			return v, core.ErrTimeout
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close wakes every waiter
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// Drain removes and returns everything left
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]T, 0, q.items.Length())
	for q.items.Length() > 0 {
		items = append(items, q.items.Remove().(T))
	}
	return items
}
