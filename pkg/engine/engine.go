package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/observability"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// Engine orchestrates request processing between the front ends and the
// provider backend. It implements transport.Calculator.
type Engine struct {
	provider provider.Provider
	cfg      Config
}

// Ensure Engine implements transport.Calculator at compile time.
var _ transport.Calculator = (*Engine)(nil)

// New creates a new Engine. The provider must not be nil.
func New(p provider.Provider, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Engine{provider: p, cfg: cfg}, nil
}

// Provider returns the provider the engine dispatches to.
func (e *Engine) Provider() provider.Provider {
	return e.provider
}

// Calculate dispatches on the request kind.
func (e *Engine) Calculate(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
	if apiErr := provider.ValidateCapabilities(e.provider.Capabilities(), req); apiErr != nil {
		return nil, apiErr
	}

	switch req.Kind {
	case api.CalculationEnergy:
		res, err := e.CalculateEnergy(ctx, req.Energy)
		if err != nil {
			return nil, err
		}
		return &api.CalculationResult{Kind: req.Kind, Energy: res}, nil
	case api.CalculationOptimization:
		res, err := e.OptimizeGeometry(ctx, req.Optimization)
		if err != nil {
			return nil, err
		}
		return &api.CalculationResult{Kind: req.Kind, Relaxation: res}, nil
	default:
		return nil, api.NewUnsupportedValueError("kind", fmt.Sprintf("unsupported calculation kind %q", req.Kind))
	}
}

// CalculateEnergy runs a single-point calculation at the request geometry.
func (e *Engine) CalculateEnergy(ctx context.Context, req *api.EnergyRequest) (*api.SinglePointEnergyResult, error) {
	kind := string(api.CalculationEnergy)
	out, err := e.invoke(ctx, kind, req.Molecule, func(ctx context.Context) (*provider.Output, error) {
		return e.provider.SinglePoint(ctx, provider.NewSinglePointRequest(req))
	})
	if err != nil {
		return nil, err
	}

	res, err := api.NewSinglePointEnergyResult(out.Energy, out.Converged, out.MOEnergy, out.MOOcc)
	if err != nil {
		return nil, e.fail(ctx, kind, err)
	}
	if err := e.checkConvergence(kind, res.Converged); err != nil {
		return nil, e.fail(ctx, kind, err)
	}
	e.logResult(ctx, kind, res.Energy, res.Converged, res.Frontier(), len(res.Orbitals))
	return res, nil
}

// OptimizeGeometry relaxes the request geometry with the configured solver.
// The optimized molecule keeps the input's charge and multiplicity.
func (e *Engine) OptimizeGeometry(ctx context.Context, req *api.OptimizationRequest) (*api.StructureRelaxationResult, error) {
	kind := string(api.CalculationOptimization)
	out, err := e.invoke(ctx, kind, req.Molecule, func(ctx context.Context) (*provider.Output, error) {
		return e.provider.Optimize(ctx, provider.NewOptimizationRequest(req))
	})
	if err != nil {
		return nil, err
	}

	res, err := api.NewStructureRelaxationResult(req.Molecule, out.Symbols, out.Positions,
		out.Energy, out.Converged, out.MOEnergy, out.MOOcc)
	if err != nil {
		return nil, e.fail(ctx, kind, err)
	}
	if err := e.checkConvergence(kind, res.Converged); err != nil {
		return nil, e.fail(ctx, kind, err)
	}
	e.logResult(ctx, kind, res.Energy, res.Converged, res.Frontier(), len(res.Orbitals))
	return res, nil
}

// invoke calls the provider with the configured timeout and records the
// engine metrics.
func (e *Engine) invoke(ctx context.Context, kind string, mol api.Molecule,
	call func(context.Context) (*provider.Output, error),
) (*provider.Output, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	debug.Log("engine", "dispatching calculation",
		slog.String("kind", kind),
		slog.String("provider", e.provider.Name()),
		slog.String("molecule", debug.Truncate(mol.String(), 200)),
		slog.Int("charge", mol.Charge()),
		slog.Int("spin_multiplicity", mol.SpinMultiplicity()))

	start := time.Now()
	out, err := call(ctx)
	observability.EngineLatency.WithLabelValues(e.provider.Name(), kind).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.EngineRequestsTotal.WithLabelValues(e.provider.Name(), kind, "error").Inc()
		return nil, e.fail(ctx, kind, err)
	}
	observability.EngineRequestsTotal.WithLabelValues(e.provider.Name(), kind, "ok").Inc()
	if out == nil {
		return nil, e.fail(ctx, kind, api.NewInternalError(fmt.Errorf("%w: provider returned no output", api.ErrInconsistentOutput)))
	}
	return out, nil
}

// fail classifies err, logs internal detail and counts the outcome.
func (e *Engine) fail(ctx context.Context, kind string, err error) *api.APIError {
	apiErr := transport.ToAPIError(err)
	if apiErr.Type == api.ErrorTypeServerError {
		attrs := []slog.Attr{
			slog.String("request_id", transport.RequestIDFromContext(ctx)),
			slog.String("kind", kind),
			slog.String("provider", e.provider.Name()),
		}
		if cause := apiErr.Unwrap(); cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}
		slog.LogAttrs(ctx, slog.LevelError, apiErr.Message, attrs...)
	}
	observability.CalculationsTotal.WithLabelValues(kind, string(apiErr.Type)).Inc()
	return apiErr
}

func (e *Engine) checkConvergence(kind string, converged bool) error {
	if converged {
		return nil
	}
	observability.UnconvergedTotal.WithLabelValues(kind).Inc()
	if e.cfg.RequireConvergence {
		return api.NewEngineError("the calculation did not converge", nil)
	}
	return nil
}

func (e *Engine) logResult(ctx context.Context, kind string, energy float64, converged bool, f api.Frontier, orbitals int) {
	observability.CalculationsTotal.WithLabelValues(kind, "ok").Inc()

	attrs := []slog.Attr{
		slog.String("request_id", transport.RequestIDFromContext(ctx)),
		slog.String("kind", kind),
		slog.Float64("energy", energy),
		slog.Bool("converged", converged),
		slog.Int("orbitals", orbitals),
	}
	if gap, ok := f.Gap(); ok {
		attrs = append(attrs, slog.Int("homo", f.HOMOIndex), slog.Float64("gap", gap))
	}
	slog.LogAttrs(ctx, slog.LevelDebug, "calculation result", attrs...)
}
