package fabric

import (
	"context"
	"sync"

	rc "robot_control"
)

// Queue is an unbounded FIFO with any number of producers and consumers.
type Queue struct {
	mu     sync.Mutex
	items  []rc.Message
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Put appends msg. It never blocks.
func (q *Queue) Put(msg rc.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.wake()
}

// Poll removes the oldest message without blocking.
func (q *Queue) Poll() (rc.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Get blocks until a message is available or ctx is done.
func (q *Queue) Get(ctx context.Context) (rc.Message, error) {
	for {
		if msg, ok := q.Poll(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) popLocked() (rc.Message, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// pass the wakeup on to another waiting consumer
		q.wake()
	}
	return msg, true
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
