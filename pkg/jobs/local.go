package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/observability"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("job queue is closed")

// shutdownWriteTimeout bounds store writes made while the queue closes.
const shutdownWriteTimeout = 5 * time.Second

func errShutdown() *api.APIError {
	return api.NewServerError("the server shut down before the calculation finished")
}

// LocalConfig configures the in-process worker pool.
type LocalConfig struct {
	// Workers is the number of concurrent calculations (default 2).
	Workers int

	// QueueSize is the number of jobs that may wait for a worker
	// (default 100). Submit fails with too_many_requests when it is full.
	QueueSize int
}

func (c *LocalConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
}

type task struct {
	id       string
	tenantID string
}

// Local is a Queue backed by a fixed pool of goroutines.
type Local struct {
	calc     transport.Calculator
	store    Store
	inflight *transport.InFlightRegistry

	// mu serializes status transitions so a cancel never races a finishing
	// worker.
	mu     sync.Mutex
	closed bool

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Queue = (*Local)(nil)

// NewLocal starts a worker pool that runs jobs with calc and records them
// in store.
func NewLocal(calc transport.Calculator, store Store, cfg LocalConfig) *Local {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Local{
		calc:     calc,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		tasks:    make(chan task, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Submit records a pending job and hands it to the pool.
func (q *Local) Submit(ctx context.Context, req *api.CalculationRequest) (*Job, error) {
	job := NewJob(req, storage.GetTenant(ctx))

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if len(q.tasks) == cap(q.tasks) {
		return nil, api.NewTooManyRequestsError("job queue is full, retry later")
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrFull) {
			return nil, api.NewTooManyRequestsError("too many unfinished jobs, retry later")
		}
		return nil, fmt.Errorf("saving job: %w", err)
	}
	q.tasks <- task{id: job.ID, tenantID: job.TenantID}

	debug.Log("jobs", "job submitted", slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)))
	return job, nil
}

// Get returns the stored state of a job.
func (q *Local) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// Cancel marks a pending or running job cancelled and stops its engine run.
func (q *Local) Cancel(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Ready() {
		return job, nil
	}
	q.inflight.Cancel(id)
	if err := q.finish(ctx, job, StatusCancelled, nil, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// Close stops accepting jobs, cancels running calculations and waits for
// the workers to exit. Interrupted and still queued jobs are recorded as
// failed so pollers see them finish.
func (q *Local) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	for t := range q.tasks {
		q.abandon(t)
	}
	return nil
}

// abandon fails a job that never reached a worker.
func (q *Local) abandon(t task) {
	ctx, cancel := context.WithTimeout(storage.SetTenant(context.Background(), t.tenantID), shutdownWriteTimeout)
	defer cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(ctx, t.id)
	if err != nil {
		slog.Error("loading queued job failed", slog.String("job_id", t.id), slog.String("error", err.Error()))
		return
	}
	if job.Status != StatusPending {
		return
	}
	if err := q.finish(ctx, job, StatusFailed, nil, errShutdown()); err != nil {
		slog.Error("failing queued job failed", slog.String("job_id", t.id), slog.String("error", err.Error()))
	}
}

func (q *Local) worker(n int) {
	defer q.wg.Done()
	for t := range q.tasks {
		if q.ctx.Err() != nil {
			q.abandon(t)
			return
		}
		q.run(storage.SetTenant(q.ctx, t.tenantID), t.id, n)
	}
}

// run executes one job. Store failures are logged; the job then stays in
// its last recorded state.
func (q *Local) run(ctx context.Context, id string, worker int) {
	job, calcCtx, cancel, ok := q.start(ctx, id)
	if !ok {
		return
	}
	defer cancel()
	defer q.inflight.Remove(id)

	observability.JobsActive.Inc()
	start := time.Now()
	res, err := q.calc.Calculate(calcCtx, job.Request)
	observability.JobsActive.Dec()

	// The outcome must be recorded even when Close cancelled ctx.
	ctx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), shutdownWriteTimeout)
	defer cancelWrite()

	q.mu.Lock()
	defer q.mu.Unlock()

	current, getErr := q.store.GetJob(ctx, id)
	if getErr != nil {
		slog.Error("reloading job failed", slog.String("job_id", id), slog.String("error", getErr.Error()))
		return
	}
	if current.Status == StatusCancelled {
		return
	}

	status := StatusSucceeded
	var apiErr *api.APIError
	if err != nil {
		status = StatusFailed
		apiErr = transport.ToAPIError(err)
		if q.ctx.Err() != nil {
			apiErr = errShutdown()
		}
	}
	if err := q.finish(ctx, current, status, res, apiErr); err != nil {
		slog.Error("saving job result failed", slog.String("job_id", id), slog.String("error", err.Error()))
		return
	}
	debug.Log("jobs", "job finished",
		slog.String("job_id", id),
		slog.Int("worker", worker),
		slog.String("status", string(status)),
		slog.Duration("duration", time.Since(start)))
}

// start moves a pending job to running and registers its cancel function.
func (q *Local) start(ctx context.Context, id string) (*Job, context.Context, context.CancelFunc, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	storeCtx := context.WithoutCancel(ctx)
	job, err := q.store.GetJob(storeCtx, id)
	if err != nil {
		slog.Error("loading job failed", slog.String("job_id", id), slog.String("error", err.Error()))
		return nil, nil, nil, false
	}
	if job.Status != StatusPending {
		return nil, nil, nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now().UTC()
	if err := q.store.UpdateJob(storeCtx, job); err != nil {
		slog.Error("marking job running failed", slog.String("job_id", id), slog.String("error", err.Error()))
		return nil, nil, nil, false
	}

	calcCtx, cancel := context.WithCancel(ctx)
	q.inflight.Register(id, cancel)
	return job, calcCtx, cancel, true
}

// FailOrphaned marks jobs that a previous process left pending or running
// as failed. It only applies to stores that outlive the process and must
// run before the queue accepts work.
func FailOrphaned(ctx context.Context, store Store) (int64, error) {
	r, ok := store.(OrphanFailer)
	if !ok {
		return 0, nil
	}
	n, err := r.FailUnfinished(ctx, errShutdown(), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failing orphaned jobs: %w", err)
	}
	if n > 0 {
		slog.Warn("failed jobs orphaned by a previous run", slog.Int64("count", n))
	}
	return n, nil
}

// finish records a terminal state. Must be called with q.mu held.
func (q *Local) finish(ctx context.Context, job *Job, status Status, res *api.CalculationResult, apiErr *api.APIError) error {
	job.Status = status
	job.Result = res
	job.Error = apiErr
	job.UpdatedAt = time.Now().UTC()
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	observability.JobsTotal.WithLabelValues("local", string(status)).Inc()
	return nil
}
