package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks running calculations for explicit cancellation.
// It maps job IDs to their cancel functions, allowing a DELETE request to
// stop a job whose engine run is still in progress.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds a running job to the registry. The cancel function is
// called if the job is explicitly cancelled.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = cancel
}

// Cancel stops a running job by calling its cancel function. Returns false
// if the ID is not registered (already finished or never started).
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// Remove drops a job from the registry without cancelling it. Called when
// the calculation finishes.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of registered jobs.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
