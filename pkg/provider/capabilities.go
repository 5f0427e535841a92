package provider

import (
	"slices"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an APIError identifying
// the specific unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps Capabilities, req *api.CalculationRequest) *api.APIError {
	if req.Kind != api.CalculationOptimization {
		return nil
	}
	if !caps.Optimization {
		return api.NewUnsupportedValueError("",
			"the configured engine does not support geometry optimization")
	}
	solver := req.Optimization.SolverConfig.Solver()
	if len(caps.Solvers) > 0 && !slices.Contains(caps.Solvers, solver) {
		return api.NewUnsupportedValueError("solver",
			"the configured engine does not support solver "+string(solver))
	}
	return nil
}
