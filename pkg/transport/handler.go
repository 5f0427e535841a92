package transport

import (
	"context"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// Calculator runs one calculation synchronously. Implementations must be
// safe for concurrent use.
type Calculator interface {
	Calculate(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error)
}

// CalculatorFunc is an adapter that allows using an ordinary function as a
// Calculator.
type CalculatorFunc func(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error)

// Calculate calls f(ctx, req).
func (f CalculatorFunc) Calculate(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
	return f(ctx, req)
}
