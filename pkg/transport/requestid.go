package transport

import (
	"context"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// calculation. If the incoming context already carries one (set by the HTTP
// adapter from the X-Request-ID header), that value is kept.
func RequestID() Middleware {
	return func(next Calculator) Calculator {
		return CalculatorFunc(func(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, api.NewRequestID())
			}
			return next.Calculate(ctx, req)
		})
	}
}
