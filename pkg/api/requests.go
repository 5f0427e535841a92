package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnergyRequest asks for the single-point energy of a molecule.
type EnergyRequest struct {
	Molecule Molecule
	Config   FunctionalConfig
}

// ToMap returns the wire mapping accepted by ParseEnergyRequest.
func (r *EnergyRequest) ToMap() map[string]any {
	return map[string]any{
		"molecule": r.Molecule.ToMap(),
		"config":   r.Config.ToMap(),
	}
}

// MarshalJSON encodes the request in its wire form.
func (r *EnergyRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON decodes and validates through ParseEnergyRequest.
func (r *EnergyRequest) UnmarshalJSON(data []byte) error {
	payload, err := DecodeObject(bytes.NewReader(data))
	if err != nil {
		return err
	}
	parsed, err := ParseEnergyRequest(payload)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// Equal reports field-for-field equality.
func (r *EnergyRequest) Equal(o *EnergyRequest) bool {
	return r.Molecule.Equal(o.Molecule) && r.Config == o.Config
}

// OptimizationRequest asks for a relaxed geometry of a molecule.
type OptimizationRequest struct {
	Molecule     Molecule
	Config       FunctionalConfig
	SolverConfig SolverConfig
}

// ToMap returns the wire mapping accepted by ParseOptimizationRequest.
// conv_params carries the effective (merged) thresholds.
func (r *OptimizationRequest) ToMap() map[string]any {
	conv := make(map[string]any, len(r.SolverConfig.convParams))
	for k, v := range r.SolverConfig.convParams {
		conv[k] = v
	}
	return map[string]any{
		"molecule":    r.Molecule.ToMap(),
		"config":      r.Config.ToMap(),
		"solver":      string(r.SolverConfig.solver),
		"conv_params": conv,
	}
}

// MarshalJSON encodes the request in its wire form.
func (r *OptimizationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON decodes and validates through ParseOptimizationRequest.
func (r *OptimizationRequest) UnmarshalJSON(data []byte) error {
	payload, err := DecodeObject(bytes.NewReader(data))
	if err != nil {
		return err
	}
	parsed, err := ParseOptimizationRequest(payload)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// Equal reports field-for-field equality.
func (r *OptimizationRequest) Equal(o *OptimizationRequest) bool {
	return r.Molecule.Equal(o.Molecule) && r.Config == o.Config && r.SolverConfig.Equal(o.SolverConfig)
}

// CalculationKind distinguishes the supported calculations.
type CalculationKind string

const (
	CalculationEnergy       CalculationKind = "energy"
	CalculationOptimization CalculationKind = "optimization"
)

// CalculationRequest is a validated request of either kind. Exactly one of
// Energy and Optimization is set, matching Kind.
type CalculationRequest struct {
	Kind         CalculationKind
	Energy       *EnergyRequest
	Optimization *OptimizationRequest
}

// NewEnergyCalculation wraps an energy request.
func NewEnergyCalculation(r *EnergyRequest) *CalculationRequest {
	return &CalculationRequest{Kind: CalculationEnergy, Energy: r}
}

// NewOptimizationCalculation wraps an optimization request.
func NewOptimizationCalculation(r *OptimizationRequest) *CalculationRequest {
	return &CalculationRequest{Kind: CalculationOptimization, Optimization: r}
}

// Molecule returns the input molecule regardless of kind.
func (c *CalculationRequest) Molecule() Molecule {
	if c.Optimization != nil {
		return c.Optimization.Molecule
	}
	if c.Energy != nil {
		return c.Energy.Molecule
	}
	return Molecule{}
}

// ParseCalculationRequest parses payload as the given kind.
func ParseCalculationRequest(kind CalculationKind, payload map[string]any) (*CalculationRequest, error) {
	switch kind {
	case CalculationEnergy:
		r, err := ParseEnergyRequest(payload)
		if err != nil {
			return nil, err
		}
		return NewEnergyCalculation(r), nil
	case CalculationOptimization:
		r, err := ParseOptimizationRequest(payload)
		if err != nil {
			return nil, err
		}
		return NewOptimizationCalculation(r), nil
	default:
		return nil, NewUnsupportedValueError("kind", "unsupported calculation kind "+quote(string(kind)))
	}
}

type calculationWire struct {
	Kind    CalculationKind `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the request as {"kind": ..., "payload": ...}.
func (c *CalculationRequest) MarshalJSON() ([]byte, error) {
	var payload any
	switch c.Kind {
	case CalculationEnergy:
		payload = c.Energy
	case CalculationOptimization:
		payload = c.Optimization
	default:
		return nil, fmt.Errorf("unknown calculation kind %q", c.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(calculationWire{Kind: c.Kind, Payload: raw})
}

// UnmarshalJSON decodes and validates the wrapped request.
func (c *CalculationRequest) UnmarshalJSON(data []byte) error {
	var w calculationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := DecodeObject(bytes.NewReader(w.Payload))
	if err != nil {
		return err
	}
	parsed, err := ParseCalculationRequest(w.Kind, payload)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}
