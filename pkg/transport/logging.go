package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// calculation with its kind, size, duration and outcome. Client errors are
// logged at WARN, server errors at ERROR.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Calculator) Calculator {
		return CalculatorFunc(func(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
			start := time.Now()

			res, err := next.Calculate(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("kind", string(req.Kind)),
				slog.Int("atoms", req.Molecule().Len()),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				level := slog.LevelError
				if api.IsClientError(err) {
					level = slog.LevelWarn
				}
				logger.LogAttrs(ctx, level, "calculation failed", attrs...)
				return nil, err
			}
			logger.LogAttrs(ctx, slog.LevelInfo, "calculation completed", attrs...)
			return res, nil
		})
	}
}
