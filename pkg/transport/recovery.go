package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// Recovery returns middleware that turns a panic in the calculation into a
// server error. The panic value and stack go to the log only.
func Recovery() Middleware {
	return func(next Calculator) Calculator {
		return CalculatorFunc(func(ctx context.Context, req *api.CalculationRequest) (res *api.CalculationResult, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "calculation panicked",
						slog.String("request_id", RequestIDFromContext(ctx)),
						slog.String("panic", fmt.Sprint(r)),
						slog.String("stack", string(debug.Stack())))
					res, retErr = nil, api.NewInternalError(fmt.Errorf("panic: %v", r))
				}
			}()
			return next.Calculate(ctx, req)
		})
	}
}
