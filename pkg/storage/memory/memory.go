// Package memory provides an in-memory implementation of jobs.Store for
// testing and single-instance deployments. Jobs are lost when the process
// restarts. Optional LRU eviction of finished jobs limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage"
)

// entry holds a stored job and its position in the LRU list.
type entry struct {
	job     jobs.Job
	lruElem *list.Element
}

// Store is an in-memory job store with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements jobs.Store at compile time.
var _ jobs.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used finished job is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// CreateJob stores a copy of job.
func (s *Store) CreateJob(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.ID]; exists {
		return storage.ErrConflict
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		if !s.evictFinished() {
			return storage.ErrFull
		}
	}

	elem := s.lruList.PushFront(job.ID)
	s.entries[job.ID] = &entry{job: *job, lruElem: elem}
	return nil
}

// GetJob returns a copy of the job. Jobs of other tenants are reported as
// not found.
func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lruList.MoveToFront(e.lruElem)
	job := e.job
	return &job, nil
}

// UpdateJob overwrites the mutable fields of a stored job.
func (s *Store) UpdateJob(ctx context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, job.ID)
	if err != nil {
		return err
	}
	e.job.Status = job.Status
	e.job.Result = job.Result
	e.job.Error = job.Error
	e.job.UpdatedAt = job.UpdatedAt
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// lookup finds an entry visible to the tenant in ctx.
// Must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.job.TenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// evictFinished removes the least recently used finished job. Pending and
// running jobs are never evicted. Must be called with s.mu held.
func (s *Store) evictFinished() bool {
	for elem := s.lruList.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(string)
		if s.entries[id].job.Status.Terminal() {
			s.lruList.Remove(elem)
			delete(s.entries, id)
			return true
		}
	}
	return false
}
