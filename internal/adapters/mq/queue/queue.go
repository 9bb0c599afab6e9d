// Package queue carries (model, split) units from the dispatcher to the worker pool.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Unit is the payload flowing through the queue.
type Unit = model.Unit

// Queue provides enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds u without blocking. It returns false when the queue is
	// full or closed.
	Enqueue(ctx context.Context, u Unit) bool

	// EnqueueWait adds u, blocking while the queue is full. It returns
	// ErrClosed after Close and ctx.Err() on cancellation.
	EnqueueWait(ctx context.Context, u Unit) error

	// Dequeue returns a channel that receives units as they become available.
	// It is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Unit

	// Len returns the current number of queued units.
	Len(ctx context.Context) int

	// Close stops accepting units; queued units can still be drained.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	units    chan Unit
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.units = make(chan Unit, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a unit to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, u Unit) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.units <- u:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.units))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// EnqueueWait adds a unit, waiting for room.
func (q *InMemoryQueue) EnqueueWait(ctx context.Context, u Unit) error {
	// The read lock is held while blocked so Close cannot close the channel
	// under a pending send.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	select {
	case q.units <- u:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.units))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue %s: %w", u.Key(), ctx.Err())
	}
}

// Dequeue returns a channel that will receive units as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Unit {
	out := make(chan Unit)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-q.units:
				if !ok {
					return
				}
				metrics.UpdateQueueSize(len(q.units))
				select {
				case out <- u:
					metrics.RecordQueueDequeue()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued units.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.units)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops the queue. Consumers drain what is left and then see the
// dequeue channel close.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.units)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
