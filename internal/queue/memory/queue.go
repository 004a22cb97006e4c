// Package memory provides a queue source for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	"github.com/crawlkit/sitemap-stage/internal/queue"
)

// Queue is a bounded in-memory source with context-aware operations. It
// tracks acknowledgments so tests can assert the exactly-once contract.
type Queue struct {
	ch chan *delivery

	mu      sync.Mutex
	acked   int
	doubles int
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *delivery, capacity)}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item pipeline.WorkItem) error {
	d := &delivery{item: item, queue: q}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- d:
		return nil
	}
}

// Next pops the next delivery, respecting context cancellation.
func (q *Queue) Next(ctx context.Context) (pipeline.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("next canceled: %w", ctx.Err())
	case d, ok := <-q.ch:
		if !ok {
			return nil, queue.ErrClosed
		}
		return d, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}

// Acked returns how many deliveries have been acknowledged.
func (q *Queue) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

// DoubleAcks returns how many redundant Ack calls were absorbed.
func (q *Queue) DoubleAcks() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.doubles
}

type delivery struct {
	item  pipeline.WorkItem
	queue *Queue
	once  sync.Once
}

func (d *delivery) Item() pipeline.WorkItem {
	return d.item
}

// Ack records the acknowledgment; repeated calls are counted but have no
// further effect.
func (d *delivery) Ack() {
	acked := false
	d.once.Do(func() {
		acked = true
	})
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if acked {
		d.queue.acked++
	} else {
		d.queue.doubles++
	}
}
