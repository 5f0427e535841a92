package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage/memory"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

func energyRequest(t *testing.T) *api.CalculationRequest {
	t.Helper()
	req, err := api.ParseCalculationRequest(api.CalculationEnergy, map[string]any{
		"molecule": map[string]any{
			"atoms": []any{
				map[string]any{"symbol": "H", "position": []any{0.0, 0.0, 0.0}},
				map[string]any{"symbol": "H", "position": []any{0.0, 0.0, 0.74}},
			},
			"charge":            0,
			"spin_multiplicity": 1,
		},
		"config": map[string]any{"functional": "pbe", "basis_set": "sto-3g"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return req
}

func staticCalculator(res *api.CalculationResult, err error) transport.Calculator {
	return transport.CalculatorFunc(func(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
		return res, err
	})
}

// blockingCalculator runs until its context is cancelled or release is closed.
func blockingCalculator(started chan<- struct{}, release <-chan struct{}) transport.Calculator {
	return transport.CalculatorFunc(func(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			return nil, api.NewServerError("aborted")
		case <-release:
			return &api.CalculationResult{Kind: req.Kind, Energy: &api.SinglePointEnergyResult{}}, nil
		}
	})
}

// waitReady polls the queue until the job is ready.
func waitReady(t *testing.T, q jobs.Queue, ctx context.Context, id string) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Ready() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestLocal_Success(t *testing.T) {
	want := &api.CalculationResult{Kind: api.CalculationEnergy, Energy: &api.SinglePointEnergyResult{Energy: -1.13, Converged: true}}
	q := jobs.NewLocal(staticCalculator(want, nil), memory.New(0), jobs.LocalConfig{Workers: 1})
	defer q.Close()

	ctx := context.Background()
	job, err := q.Submit(ctx, energyRequest(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !api.ValidateJobID(job.ID) {
		t.Errorf("malformed job ID %q", job.ID)
	}
	if job.Status != jobs.StatusPending || job.Ready() {
		t.Errorf("new job should be pending, got %s", job.Status)
	}

	done := waitReady(t, q, ctx, job.ID)
	if !done.Successful() {
		t.Fatalf("expected success, got %s (%v)", done.Status, done.Error)
	}
	res, err := done.Value()
	if err != nil || res.Energy.Energy != -1.13 {
		t.Errorf("Value() = %+v, %v", res, err)
	}
}

func TestLocal_FailureKeepsClassification(t *testing.T) {
	q := jobs.NewLocal(staticCalculator(nil, api.NewEngineError("Basis not found", nil)), memory.New(0), jobs.LocalConfig{})
	defer q.Close()

	ctx := context.Background()
	job, _ := q.Submit(ctx, energyRequest(t))
	done := waitReady(t, q, ctx, job.ID)

	if done.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	_, err := done.Value()
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeEngineError || apiErr.Message != "Basis not found" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLocal_UnclassifiedErrorBecomesInternal(t *testing.T) {
	q := jobs.NewLocal(staticCalculator(nil, errors.New("boom")), memory.New(0), jobs.LocalConfig{})
	defer q.Close()

	ctx := context.Background()
	job, _ := q.Submit(ctx, energyRequest(t))
	done := waitReady(t, q, ctx, job.ID)

	if done.Error == nil || done.Error.Message != "internal error" {
		t.Errorf("expected generic internal error, got %+v", done.Error)
	}
}

func TestLocal_CancelRunning(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	q := jobs.NewLocal(blockingCalculator(started, release), memory.New(0), jobs.LocalConfig{Workers: 1})
	defer q.Close()

	ctx := context.Background()
	job, _ := q.Submit(ctx, energyRequest(t))
	<-started

	cancelled, err := q.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != jobs.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	// The worker's aborted result must not overwrite the cancellation.
	time.Sleep(20 * time.Millisecond)
	got, _ := q.Get(ctx, job.ID)
	if got.Status != jobs.StatusCancelled {
		t.Errorf("status after worker exit = %s, want cancelled", got.Status)
	}
}

func TestLocal_CancelPendingAndFinished(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	q := jobs.NewLocal(blockingCalculator(started, release), memory.New(0), jobs.LocalConfig{Workers: 1})
	defer q.Close()

	ctx := context.Background()
	first, _ := q.Submit(ctx, energyRequest(t))
	<-started
	second, _ := q.Submit(ctx, energyRequest(t))

	// second is still queued behind first.
	if got, _ := q.Cancel(ctx, second.ID); got.Status != jobs.StatusCancelled {
		t.Errorf("pending job status = %s, want cancelled", got.Status)
	}

	close(release)
	done := waitReady(t, q, ctx, first.ID)
	if !done.Successful() {
		t.Fatalf("first job should succeed, got %s", done.Status)
	}

	// Cancelling a finished job is a no-op.
	if got, _ := q.Cancel(ctx, first.ID); got.Status != jobs.StatusSucceeded {
		t.Errorf("finished job status changed to %s", got.Status)
	}
	select {
	case <-started:
		t.Error("cancelled pending job must never start")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLocal_QueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	q := jobs.NewLocal(blockingCalculator(started, release), memory.New(0), jobs.LocalConfig{Workers: 1, QueueSize: 1})
	defer q.Close()

	ctx := context.Background()
	q.Submit(ctx, energyRequest(t))
	<-started
	if _, err := q.Submit(ctx, energyRequest(t)); err != nil {
		t.Fatalf("second submit should be queued: %v", err)
	}

	_, err := q.Submit(ctx, energyRequest(t))
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeTooManyRequests {
		t.Errorf("expected too_many_requests, got %v", err)
	}
}

func TestLocal_TenantScoping(t *testing.T) {
	q := jobs.NewLocal(staticCalculator(&api.CalculationResult{Kind: api.CalculationEnergy}, nil), memory.New(0), jobs.LocalConfig{})
	defer q.Close()

	owner := storage.SetTenant(context.Background(), "alice")
	job, err := q.Submit(owner, energyRequest(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.TenantID != "alice" {
		t.Errorf("TenantID = %q", job.TenantID)
	}
	waitReady(t, q, owner, job.ID)

	other := storage.SetTenant(context.Background(), "bob")
	if _, err := q.Get(other, job.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other tenant, got %v", err)
	}
	if _, err := q.Cancel(other, job.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other tenant must not cancel, got %v", err)
	}
}

func TestLocal_Close(t *testing.T) {
	var calls atomic.Int32
	calc := transport.CalculatorFunc(func(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
		calls.Add(1)
		return &api.CalculationResult{Kind: req.Kind}, nil
	})
	q := jobs.NewLocal(calc, memory.New(0), jobs.LocalConfig{})

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := q.Submit(context.Background(), energyRequest(t)); !errors.Is(err, jobs.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

// cancelAwareStore fails store calls made with a cancelled context, the
// way a database-backed store does.
type cancelAwareStore struct {
	*memory.Store
}

func (s cancelAwareStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.GetJob(ctx, id)
}

func (s cancelAwareStore) UpdateJob(ctx context.Context, job *jobs.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.UpdateJob(ctx, job)
}

func TestLocal_CloseFinishesInterruptedJobs(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	store := cancelAwareStore{memory.New(0)}
	q := jobs.NewLocal(blockingCalculator(started, release), store, jobs.LocalConfig{Workers: 1, QueueSize: 4})

	ctx := context.Background()
	running, err := q.Submit(ctx, energyRequest(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	queued, err := q.Submit(ctx, energyRequest(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, id := range []string{running.ID, queued.ID} {
		job, err := store.GetJob(ctx, id)
		if err != nil {
			t.Fatalf("GetJob(%s): %v", id, err)
		}
		if job.Status != jobs.StatusFailed {
			t.Errorf("job %s status = %s, want failed", id, job.Status)
		}
		if job.Error == nil || job.Error.Type != api.ErrorTypeServerError {
			t.Errorf("job %s error = %+v, want server_error", id, job.Error)
		}
	}
}

func TestFailOrphaned_IgnoresVolatileStores(t *testing.T) {
	n, err := jobs.FailOrphaned(context.Background(), memory.New(0))
	if err != nil || n != 0 {
		t.Errorf("FailOrphaned = %d, %v; want 0, nil", n, err)
	}
}
