package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a job does not exist or belongs to
	// another tenant.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a job with the given ID already exists.
	ErrConflict = errors.New("job already exists")

	// ErrFull is returned when a bounded store holds only unfinished jobs
	// and none can be evicted.
	ErrFull = errors.New("job store is full")
)
