// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers and routes cancel
// requests to the job that is running.
type Dispatcher struct {
	queue    gallery.Queue
	jobStore gallery.JobStore
	workers  []*worker.Worker
	cancels  *worker.Registry
}

// New creates a Dispatcher. cancels should be the registry shared with the
// workers. jobStore may be nil, in which case cancel requests for finished
// jobs are kept until the registry is discarded.
func New(queue gallery.Queue, jobStore gallery.JobStore, workers []*worker.Worker, cancels *worker.Registry) *Dispatcher {
	if cancels == nil {
		cancels = worker.NewRegistry()
	}
	return &Dispatcher{
		queue:    queue,
		jobStore: jobStore,
		workers:  workers,
		cancels:  cancels,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item gallery.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Cancel requests cancellation of jobID and reports whether it was running.
// A request for a job that has already reached a terminal status is dropped.
func (d *Dispatcher) Cancel(jobID string) bool {
	if d.cancels.Cancel(jobID) {
		return true
	}
	if d.jobStore == nil {
		return false
	}
	// Workers persist the terminal status before leaving the registry, so a
	// job that is terminal here can never consume the request.
	job, err := d.jobStore.Get(context.Background(), jobID)
	if err == nil && job.Status.IsTerminal() {
		d.cancels.Forget(jobID)
	}
	return false
}
