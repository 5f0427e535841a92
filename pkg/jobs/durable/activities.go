package durable

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

const heartbeatInterval = heartbeatTimeout / 3

// Activities runs calculations on a worker.
type Activities struct {
	calc transport.Calculator
}

// NewActivities creates activities that run calculations with calc.
func NewActivities(calc transport.Calculator) *Activities {
	return &Activities{calc: calc}
}

// RunCalculation executes the request. The activity heartbeats while the
// engine runs so that a workflow cancellation reaches the engine context.
func (a *Activities) RunCalculation(ctx context.Context, in CalculationInput) (*api.CalculationResult, error) {
	if in.Request == nil {
		return nil, nonRetryable(api.NewStructuralError("request", "missing calculation request"), nil)
	}
	if in.RequestID != "" {
		ctx = transport.ContextWithRequestID(ctx, in.RequestID)
	}

	info := activity.GetInfo(ctx)
	slog.Info("running calculation",
		slog.String("workflow_id", info.WorkflowExecution.ID),
		slog.Int("attempt", int(info.Attempt)),
		slog.String("kind", string(in.Request.Kind)))

	stop := startHeartbeat(ctx)
	defer stop()

	res, err := a.calc.Calculate(ctx, in.Request)
	if err != nil {
		apiErr := transport.ToAPIError(err)
		// Inconsistent engine output is deterministic for a given input.
		if api.IsClientError(apiErr) || errors.Is(err, api.ErrInconsistentOutput) {
			return nil, nonRetryable(apiErr, err)
		}
		return nil, temporal.NewApplicationErrorWithCause(apiErr.Message, string(apiErr.Type), err, apiErr)
	}
	return res, nil
}

func nonRetryable(apiErr *api.APIError, cause error) error {
	return temporal.NewNonRetryableApplicationError(apiErr.Message, string(apiErr.Type), cause, apiErr)
}

// startHeartbeat records a heartbeat every heartbeatInterval until the
// returned function is called.
func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
