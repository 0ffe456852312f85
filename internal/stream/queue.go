// Package stream turns blocking, line-oriented process output into
// non-blocking line sources.
//
// Two layers:
//
//	Reader: one goroutine per OS stream, reads lines as fast as they arrive
//	Queue:  unbounded FIFO the reader appends to; consumers pop at their own pace
//
// Unlike a bounded channel, a Queue never drops and never blocks the writer, so
// a slow consumer cannot stall the external process on a full pipe.
package stream

import (
	"context"
	"sync"
)

// Queue is an unbounded, append-only FIFO of lines.
// It is safe for concurrent use by any number of producers and consumers.
type Queue struct {
	mu    sync.Mutex
	lines []string
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Push appends a line and signals Ready. Never blocks.
func (q *Queue) Push(line string) {
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()
	q.signal()
}

// TryPop removes and returns the oldest line.
// Returns ("", false) when the queue is empty.
func (q *Queue) TryPop() (string, bool) {
	q.mu.Lock()
	if len(q.lines) == 0 {
		q.mu.Unlock()
		return "", false
	}
	line := q.lines[0]
	q.lines[0] = ""
	q.lines = q.lines[1:]
	remaining := len(q.lines)
	if remaining == 0 {
		// Release the backing array once drained
		q.lines = nil
	}
	q.mu.Unlock()

	// Ready coalesces; re-arm it so other consumers see the leftover lines
	if remaining > 0 {
		q.signal()
	}
	return line, true
}

// Pop blocks until a line is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	for {
		if line, ok := q.TryPop(); ok {
			return line, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}

// Ready returns a channel that receives a value whenever lines are pushed.
// Notifications coalesce: one receive may cover many lines, so consumers
// should drain with TryPop until it reports empty.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of buffered lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

// Snapshot returns a copy of the buffered lines without consuming them.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.lines))
	copy(out, q.lines)
	return out
}

// Tail returns a copy of up to n of the newest buffered lines, oldest first,
// without consuming them.
func (q *Queue) Tail(n int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	lines := q.lines
	if n < len(lines) {
		lines = lines[len(lines)-max(n, 0):]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
