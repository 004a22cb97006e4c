// Package dispatcher manages worker fan-out over the item source.
package dispatcher

import (
	"context"
	"sync"

	"github.com/crawlkit/sitemap-stage/internal/worker"
)

// Dispatcher runs a pool of workers against the shared source.
type Dispatcher struct {
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Run starts all workers and blocks until they all return.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}
