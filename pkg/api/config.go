package api

import (
	"maps"
	"slices"
	"strings"
)

// FunctionalConfig names the exchange-correlation functional and basis set.
// Both are opaque to this package; only the engine judges their validity.
type FunctionalConfig struct {
	Functional string `json:"functional"`
	BasisSet   string `json:"basis_set"`
}

// ToMap returns the wire mapping of the configuration.
func (c FunctionalConfig) ToMap() map[string]any {
	return map[string]any{
		"functional": c.Functional,
		"basis_set":  c.BasisSet,
	}
}

// Solver identifies a geometry optimizer supported by the engine.
type Solver string

const (
	SolverGeomeTRIC Solver = "geomeTRIC"
	SolverBerny     Solver = "berny"
)

// Solvers lists the supported solvers.
var Solvers = []Solver{SolverGeomeTRIC, SolverBerny}

var solverDefaults = map[Solver]map[string]float64{
	SolverGeomeTRIC: {
		"convergence_energy": 1e-6,
		"convergence_grms":   3e-4,
		"convergence_gmax":   4.5e-4,
		"convergence_drms":   1.2e-3,
		"convergence_dmax":   1.8e-3,
	},
	SolverBerny: {
		"gradientmax": 0.45e-3,
		"gradientrms": 0.15e-3,
		"stepmax":     1.8e-3,
		"steprms":     1.2e-3,
	},
}

// ParseSolver resolves a solver name case-insensitively to its canonical form.
func ParseSolver(name string) (Solver, bool) {
	for _, s := range Solvers {
		if strings.EqualFold(name, string(s)) {
			return s, true
		}
	}
	return "", false
}

// DefaultConvParams returns a fresh copy of the solver's default
// convergence thresholds, or nil for an unknown solver.
func (s Solver) DefaultConvParams() map[string]float64 {
	d, ok := solverDefaults[s]
	if !ok {
		return nil
	}
	return maps.Clone(d)
}

// MergeConvParams overlays overrides onto defaults and returns a new map.
// Any override key absent from defaults is rejected before merging; the
// first such key in lexical order is named in the error. Neither input is
// modified.
func MergeConvParams(defaults, overrides map[string]float64) (map[string]float64, error) {
	for _, k := range slices.Sorted(maps.Keys(overrides)) {
		if _, ok := defaults[k]; !ok {
			return nil, NewUnsupportedValueError("conv_params."+k,
				"unsupported convergence parameter "+quote(k))
		}
	}
	merged := maps.Clone(defaults)
	if merged == nil {
		merged = map[string]float64{}
	}
	maps.Copy(merged, overrides)
	return merged, nil
}

// SolverConfig is a solver together with its effective convergence
// thresholds (defaults overlaid by caller values).
type SolverConfig struct {
	solver     Solver
	convParams map[string]float64
}

// NewSolverConfig merges overrides into the solver's defaults.
func NewSolverConfig(solver Solver, overrides map[string]float64) (SolverConfig, error) {
	defaults := solver.DefaultConvParams()
	if defaults == nil {
		return SolverConfig{}, NewUnsupportedValueError("solver", "unsupported solver "+quote(string(solver)))
	}
	merged, err := MergeConvParams(defaults, overrides)
	if err != nil {
		return SolverConfig{}, err
	}
	return SolverConfig{solver: solver, convParams: merged}, nil
}

// Solver returns the solver name.
func (c SolverConfig) Solver() Solver { return c.solver }

// ConvParams returns a copy of the effective convergence thresholds.
func (c SolverConfig) ConvParams() map[string]float64 { return maps.Clone(c.convParams) }

// Equal reports whether both configurations select the same solver with
// the same thresholds.
func (c SolverConfig) Equal(o SolverConfig) bool {
	return c.solver == o.solver && maps.Equal(c.convParams, o.convParams)
}
