package durable

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

const (
	// WorkflowName is the registered name of CalculationWorkflow.
	WorkflowName = "CalculationWorkflow"

	// RunCalculationActivity is the registered name of Activities.RunCalculation.
	RunCalculationActivity = "RunCalculation"

	// DefaultActivityTimeout bounds one engine run.
	DefaultActivityTimeout = 30 * time.Minute

	heartbeatTimeout = 30 * time.Second
)

// CalculationInput is the argument of CalculationWorkflow.
type CalculationInput struct {
	RequestID string                  `json:"request_id,omitempty"`
	Request   *api.CalculationRequest `json:"request"`

	// Timeout overrides DefaultActivityTimeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CalculationWorkflow runs one calculation and returns its result. A
// request that fails validation or is rejected by the engine completes the
// workflow with a non-retryable error carrying the *api.APIError as details.
func CalculationWorkflow(ctx workflow.Context, in CalculationInput) (*api.CalculationResult, error) {
	if in.Request == nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"missing calculation request",
			string(api.ErrorTypeInvalidRequest),
			nil,
			api.NewStructuralError("request", "missing calculation request"),
		)
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    heartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				string(api.ErrorTypeInvalidRequest),
				string(api.ErrorTypeEngineError),
			},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("calculation started", "kind", string(in.Request.Kind), "request_id", in.RequestID)

	var res api.CalculationResult
	if err := workflow.ExecuteActivity(ctx, RunCalculationActivity, in).Get(ctx, &res); err != nil {
		logger.Warn("calculation failed", "error", err)
		return nil, err
	}
	return &res, nil
}
