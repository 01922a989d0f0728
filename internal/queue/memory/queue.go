// Package memory provides the bounded in-process channel between the stream
// listener and the result writer.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/tweetstream/internal/ingest"
)

// ErrQueueClosed is returned by Dequeue once the queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded FIFO of records. Producers never block: TryEnqueue drops
// the record when the queue is full. Consumers block in Dequeue.
type Queue struct {
	ch      chan ingest.Record
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan ingest.Record, capacity),
	}
}

// TryEnqueue inserts rec if there is room and reports whether it did. A
// closed queue accepts nothing.
func (q *Queue) TryEnqueue(rec ingest.Record) bool {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- rec:
		return true
	default:
		return false
	}
}

// Dequeue pops the oldest record, respecting context cancellation. A context
// that is already done wins over queued records.
func (q *Queue) Dequeue(ctx context.Context) (ingest.Record, error) {
	if err := ctx.Err(); err != nil {
		return ingest.Record{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return ingest.Record{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case rec, ok := <-q.ch:
		if !ok {
			return ingest.Record{}, ErrQueueClosed
		}
		return rec, nil
	}
}

// Len returns the number of records waiting.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Close stops accepting records. Records already queued stay dequeueable.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
