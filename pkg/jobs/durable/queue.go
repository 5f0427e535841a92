package durable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/observability"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

const (
	memoTenant = "tenant"
	memoKind   = "kind"
)

// Queue is a jobs.Queue whose jobs are Temporal workflow executions.
// Temporal is the only record of a job; nothing is written to a jobs.Store.
type Queue struct {
	client    client.Client
	taskQueue string
	timeout   time.Duration
}

var _ jobs.Queue = (*Queue)(nil)

// NewQueue creates a queue that starts workflows on cfg.TaskQueue. timeout
// bounds each engine run; zero means DefaultActivityTimeout.
func NewQueue(c client.Client, cfg Config, timeout time.Duration) *Queue {
	cfg.defaults()
	return &Queue{client: c, taskQueue: cfg.TaskQueue, timeout: timeout}
}

// Submit starts a workflow whose ID is the new job's ID.
func (q *Queue) Submit(ctx context.Context, req *api.CalculationRequest) (*jobs.Job, error) {
	job := jobs.NewJob(req, storage.GetTenant(ctx))

	opts := client.StartWorkflowOptions{
		ID:        job.ID,
		TaskQueue: q.taskQueue,
		Memo: map[string]any{
			memoTenant: job.TenantID,
			memoKind:   string(job.Kind),
		},
	}
	in := CalculationInput{
		RequestID: transport.RequestIDFromContext(ctx),
		Request:   req,
		Timeout:   q.timeout,
	}
	if _, err := q.client.ExecuteWorkflow(ctx, opts, WorkflowName, in); err != nil {
		return nil, fmt.Errorf("starting workflow: %w", err)
	}
	observability.JobsTotal.WithLabelValues("temporal", string(jobs.StatusPending)).Inc()
	debug.Log("jobs", "workflow started", slog.String("job_id", job.ID), slog.String("task_queue", q.taskQueue))
	return job, nil
}

// Get describes the workflow and, once it has closed, fetches its outcome.
func (q *Queue) Get(ctx context.Context, id string) (*jobs.Job, error) {
	desc, err := q.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("describing workflow: %w", err)
	}

	job, err := jobFromDescription(id, desc)
	if err != nil {
		return nil, err
	}
	if tenant := storage.GetTenant(ctx); tenant != "" && tenant != job.TenantID {
		return nil, storage.ErrNotFound
	}

	switch job.Status {
	case jobs.StatusSucceeded:
		var res api.CalculationResult
		if err := q.client.GetWorkflow(ctx, id, "").Get(ctx, &res); err != nil {
			return nil, fmt.Errorf("fetching workflow result: %w", err)
		}
		job.Result = &res
	case jobs.StatusFailed:
		err := q.client.GetWorkflow(ctx, id, "").Get(ctx, nil)
		job.Error = apiErrorFrom(err)
	}
	return job, nil
}

// Cancel requests cancellation of a running workflow. Finished jobs are
// returned unchanged.
func (q *Queue) Cancel(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Ready() {
		return job, nil
	}
	if err := q.client.CancelWorkflow(ctx, id, ""); err != nil {
		return nil, fmt.Errorf("cancelling workflow: %w", err)
	}
	job.Status = jobs.StatusCancelled
	job.UpdatedAt = time.Now().UTC()
	observability.JobsTotal.WithLabelValues("temporal", string(jobs.StatusCancelled)).Inc()
	return job, nil
}

// Close closes the Temporal client.
func (q *Queue) Close() error {
	q.client.Close()
	return nil
}

func jobFromDescription(id string, desc *workflowservice.DescribeWorkflowExecutionResponse) (*jobs.Job, error) {
	info := desc.GetWorkflowExecutionInfo()
	if info == nil {
		return nil, fmt.Errorf("workflow %s has no execution info", id)
	}

	job := &jobs.Job{ID: id}
	dc := converter.GetDefaultDataConverter()
	fields := info.GetMemo().GetFields()
	if p, ok := fields[memoTenant]; ok {
		if err := dc.FromPayload(p, &job.TenantID); err != nil {
			return nil, fmt.Errorf("decoding memo %s: %w", memoTenant, err)
		}
	}
	if p, ok := fields[memoKind]; ok {
		var kind string
		if err := dc.FromPayload(p, &kind); err != nil {
			return nil, fmt.Errorf("decoding memo %s: %w", memoKind, err)
		}
		job.Kind = api.CalculationKind(kind)
	}

	if info.GetStartTime() != nil {
		job.CreatedAt = info.GetStartTime().AsTime()
	}
	job.UpdatedAt = job.CreatedAt
	if info.GetCloseTime() != nil {
		job.UpdatedAt = info.GetCloseTime().AsTime()
	}

	switch info.GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		job.Status = jobs.StatusSucceeded
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		job.Status = jobs.StatusFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		job.Status = jobs.StatusCancelled
	default:
		job.Status = jobs.StatusPending
		for _, pa := range desc.GetPendingActivities() {
			if pa.GetState() == enumspb.PENDING_ACTIVITY_STATE_STARTED {
				job.Status = jobs.StatusRunning
				break
			}
		}
	}
	return job, nil
}

// apiErrorFrom recovers the *api.APIError an activity attached to its
// failure. Failures without one are reported as server errors.
func apiErrorFrom(err error) *api.APIError {
	if err == nil {
		return api.NewServerError("job failed")
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.HasDetails() {
		var detail api.APIError
		if derr := appErr.Details(&detail); derr == nil && detail.Type != "" {
			return &detail
		}
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return api.NewServerError("calculation timed out")
	}
	var terminatedErr *temporal.TerminatedError
	if errors.As(err, &terminatedErr) {
		return api.NewServerError("job was terminated")
	}
	slog.Error("workflow failed without error details", slog.String("error", err.Error()))
	return api.NewInternalError(err)
}
