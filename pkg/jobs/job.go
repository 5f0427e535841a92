package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// ErrNotReady is returned by Job.Value while the job is still pending or
// running.
var ErrNotReady = errors.New("job is not ready")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Job is one asynchronous calculation.
type Job struct {
	ID        string
	Kind      api.CalculationKind
	Status    Status
	TenantID  string
	Request   *api.CalculationRequest
	Result    *api.CalculationResult
	Error     *api.APIError
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a pending job for req.
func NewJob(req *api.CalculationRequest, tenantID string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        api.NewJobID(),
		Kind:      req.Kind,
		Status:    StatusPending,
		TenantID:  tenantID,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Ready reports whether the job has finished, successfully or not.
func (j *Job) Ready() bool { return j.Status.Terminal() }

// Successful reports whether the job finished with a result.
func (j *Job) Successful() bool { return j.Status == StatusSucceeded }

// Value returns the job's result or its error. It returns ErrNotReady until
// the job has finished.
func (j *Job) Value() (*api.CalculationResult, error) {
	switch j.Status {
	case StatusSucceeded:
		return j.Result, nil
	case StatusFailed:
		if j.Error == nil {
			return nil, api.NewServerError("job failed")
		}
		return nil, j.Error
	case StatusCancelled:
		return nil, api.NewServerError("job was cancelled")
	default:
		return nil, ErrNotReady
	}
}

// Handle is the wire form of a job.
type Handle struct {
	ID         string              `json:"id"`
	Kind       api.CalculationKind `json:"kind"`
	Status     Status              `json:"status"`
	Ready      bool                `json:"ready"`
	Successful bool                `json:"successful"`
	Result     json.RawMessage     `json:"result,omitempty"`
	Error      *api.APIError       `json:"error,omitempty"`
	CreatedAt  int64               `json:"created_at"`
	UpdatedAt  int64               `json:"updated_at"`
}

// Handle renders the job for clients. The result is the kind-specific
// result object, exactly as the synchronous endpoints return it.
func (j *Job) Handle() (*Handle, error) {
	h := &Handle{
		ID:         j.ID,
		Kind:       j.Kind,
		Status:     j.Status,
		Ready:      j.Ready(),
		Successful: j.Successful(),
		CreatedAt:  j.CreatedAt.Unix(),
		UpdatedAt:  j.UpdatedAt.Unix(),
	}
	if j.Status == StatusFailed {
		h.Error = j.Error
	}
	if j.Successful() && j.Result != nil {
		raw, err := json.Marshal(j.Result.Payload())
		if err != nil {
			return nil, err
		}
		h.Result = raw
	}
	return h, nil
}

// Store persists jobs. Reads are scoped to the tenant in the context (see
// storage.SetTenant); an empty tenant sees every job.
type Store interface {
	// CreateJob saves a new job. Returns storage.ErrConflict if the ID exists.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by ID or storage.ErrNotFound.
	GetJob(ctx context.Context, id string) (*Job, error)

	// UpdateJob replaces the status, result, error and update time of an
	// existing job. Returns storage.ErrNotFound if the job does not exist.
	UpdateJob(ctx context.Context, job *Job) error

	// HealthCheck verifies the store is usable.
	HealthCheck(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// OrphanFailer is implemented by stores whose jobs survive a restart.
type OrphanFailer interface {
	// FailUnfinished marks every pending or running job failed with e and
	// returns how many were changed.
	FailUnfinished(ctx context.Context, e *api.APIError, at time.Time) (int64, error)
}

// Queue runs calculations asynchronously.
type Queue interface {
	// Submit enqueues a calculation and returns its pending job.
	Submit(ctx context.Context, req *api.CalculationRequest) (*Job, error)

	// Get returns the current state of a job, or storage.ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// Cancel stops a job that has not finished and returns its state.
	Cancel(ctx context.Context, id string) (*Job, error)

	// Close stops accepting jobs and waits for running ones to wind down.
	Close() error
}
