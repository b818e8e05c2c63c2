// Package memory provides the in-process job queue feeding the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = gallery.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan gallery.QueueItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan gallery.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item gallery.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (gallery.QueueItem, error) {
	select {
	case <-ctx.Done():
		return gallery.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return gallery.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. Items already queued can
// still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
