package worker

import (
	"context"
	"sync"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

// Registry tracks the cancel functions of running jobs. A cancel requested
// before the job starts is remembered and applied on Register.
type Registry struct {
	mu        sync.Mutex
	running   map[string]context.CancelCauseFunc
	requested map[string]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		running:   make(map[string]context.CancelCauseFunc),
		requested: make(map[string]struct{}),
	}
}

// Register records cancel for jobID.
func (r *Registry) Register(jobID string, cancel context.CancelCauseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requested[jobID]; ok {
		delete(r.requested, jobID)
		cancel(gallery.ErrJobCanceled)
	}
	r.running[jobID] = cancel
}

// Remove forgets jobID once its run has returned.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, jobID)
	delete(r.requested, jobID)
}

// Cancel stops jobID if it is running and reports whether it was. Otherwise
// the request is kept until the job is registered.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.running[jobID]; ok {
		cancel(gallery.ErrJobCanceled)
		return true
	}
	r.requested[jobID] = struct{}{}
	return false
}

// Forget drops a pending cancel request for jobID.
func (r *Registry) Forget(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requested, jobID)
}

// Pending reports the number of cancel requests waiting for their job.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requested)
}

// Running reports the number of registered jobs.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// CancelAll stops every running job with cause and returns how many there were.
func (r *Registry) CancelAll(cause error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.running {
		cancel(cause)
	}
	return len(r.running)
}
