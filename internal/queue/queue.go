// Package queue provides an unbounded FIFO safe for many producers and a
// blocking consumer.
package queue

import (
	"context"
	"sync"

	ring "github.com/eapache/queue"
)

// Queue is an unbounded FIFO. Put never blocks; Take blocks until an item
// arrives or the context is done.
type Queue[T any] struct {
	mu     sync.Mutex
	items  *ring.Queue
	notify chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  ring.New(),
		notify: make(chan struct{}, 1),
	}
}

// Put appends an item
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	q.items.Add(item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryTake removes the head item without blocking
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.items.Length() == 0 {
		return zero, false
	}
	return q.items.Remove().(T), true
}

// Take removes the head item, waiting for one if the queue is empty
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryTake(); ok {
			q.signalIfPending()
			return item, nil
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// signalIfPending re-arms the notification so a second consumer is not left waiting
func (q *Queue[T]) signalIfPending() {
	if q.Len() == 0 {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Clear drops every queued item
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	q.items = ring.New()
	q.mu.Unlock()
}
