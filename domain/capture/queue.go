package capture

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("frame queue closed")

// FrameQueue is the unbounded FIFO between the worker and its consumers.
// Push never blocks or drops; occupancy is observable through Len so the
// producer can report backpressure. Safe for one producer and many consumers.
type FrameQueue struct {
	mu     sync.Mutex
	frames []Frame
	notify chan struct{} // closed and replaced on every push or close
	closed bool
}

// NewFrameQueue returns an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{notify: make(chan struct{})}
}

// Push appends f and returns the depth observed before the push. Frames
// pushed after Close are discarded.
func (q *FrameQueue) Push(f Frame) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	depth := len(q.frames)
	if q.closed {
		return depth
	}
	q.frames = append(q.frames, f)
	close(q.notify)
	q.notify = make(chan struct{})
	return depth
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// TryPop removes the oldest frame without blocking.
func (q *FrameQueue) TryPop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop blocks until a frame is available, ctx is done or the queue is closed.
func (q *FrameQueue) Pop(ctx context.Context) (Frame, error) {
	for {
		q.mu.Lock()
		if f, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return f, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Frame{}, ErrQueueClosed
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-notify:
		}
	}
}

// Close wakes blocked consumers. Queued frames can still be drained.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func (q *FrameQueue) popLocked() (Frame, bool) {
	if len(q.frames) == 0 {
		return Frame{}, false
	}
	f := q.frames[0]
	q.frames[0] = Frame{}
	q.frames = q.frames[1:]
	return f, true
}
