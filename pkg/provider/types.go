package provider

import (
	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// Capabilities declares what the engine supports. Used by the engine
// package for early request validation.
type Capabilities struct {
	// Optimization indicates whether geometry optimization is available.
	Optimization bool

	// Solvers lists the optimizers the engine accepts. Empty means all.
	Solvers []api.Solver
}

// Request is the engine-facing form of a validated calculation. Spin is
// 2S (number of unpaired electrons), not the multiplicity.
type Request struct {
	Atom         string             `json:"atom"`
	Basis        string             `json:"basis"`
	XC           string             `json:"xc"`
	Charge       int                `json:"charge"`
	Spin         int                `json:"spin"`
	Unrestricted bool               `json:"unrestricted"`
	Solver       string             `json:"solver,omitempty"`
	ConvParams   map[string]float64 `json:"conv_params,omitempty"`
}

// NewSinglePointRequest translates an energy request. Open-shell molecules
// (multiplicity > 1) use the unrestricted method.
func NewSinglePointRequest(r *api.EnergyRequest) *Request {
	return newRequest(r.Molecule, r.Config)
}

// NewOptimizationRequest translates an optimization request.
func NewOptimizationRequest(r *api.OptimizationRequest) *Request {
	req := newRequest(r.Molecule, r.Config)
	req.Solver = string(r.SolverConfig.Solver())
	req.ConvParams = r.SolverConfig.ConvParams()
	return req
}

func newRequest(mol api.Molecule, cfg api.FunctionalConfig) *Request {
	return &Request{
		Atom:         mol.String(),
		Basis:        cfg.BasisSet,
		XC:           cfg.Functional,
		Charge:       mol.Charge(),
		Spin:         mol.Spin(),
		Unrestricted: mol.SpinMultiplicity() > 1,
	}
}

// Output is the raw numeric result of an engine run. Symbols and Positions
// (angstrom) are only set by Optimize. For unrestricted runs the orbital
// arrays hold the alpha orbitals followed by the beta orbitals.
type Output struct {
	Energy      float64      `json:"e_tot"`
	Converged   bool         `json:"converged"`
	MOEnergy    []float64    `json:"mo_energy"`
	MOOcc       []float64    `json:"mo_occ"`
	Symbols     []string     `json:"symbols,omitempty"`
	Positions   [][3]float64 `json:"positions,omitempty"`
	Frequencies []float64    `json:"frequencies,omitempty"`
}

// ErrorBody is the error document engines return on failure.
type ErrorBody struct {
	Error struct {
		Kind    string `json:"kind,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

// Engine error kinds reported in ErrorBody.
const (
	ErrorKindInput    = "input"
	ErrorKindInternal = "internal"
)
