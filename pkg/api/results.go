package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PositionDecimals is the number of decimal digits optimized coordinates are
// rounded to.
const PositionDecimals = 7

// ErrInconsistentOutput marks engine output that violates the structure the
// result types require. It always surfaces as a server error.
var ErrInconsistentOutput = errors.New("inconsistent engine output")

// Orbital is one molecular orbital: its energy in hartree and occupancy.
type Orbital struct {
	Energy    float64 `json:"energy"`
	Occupancy float64 `json:"occupancy"`
}

// ZipOrbitals pairs orbital energies with occupancies, preserving order.
// Arrays of different length are an internal error.
func ZipOrbitals(energies, occupancies []float64) ([]Orbital, error) {
	if len(energies) != len(occupancies) {
		return nil, NewInternalError(fmt.Errorf("%w: %d orbital energies but %d occupancies",
			ErrInconsistentOutput, len(energies), len(occupancies)))
	}
	out := make([]Orbital, len(energies))
	for i := range energies {
		out[i] = Orbital{Energy: energies[i], Occupancy: occupancies[i]}
	}
	return out, nil
}

// SinglePointEnergyResult is the outcome of an energy calculation.
type SinglePointEnergyResult struct {
	Energy    float64   `json:"energy"`
	Converged bool      `json:"converged"`
	Orbitals  []Orbital `json:"orbitals"`
}

// NewSinglePointEnergyResult builds a result from raw engine output.
func NewSinglePointEnergyResult(energy float64, converged bool, moEnergies, moOccupancies []float64) (*SinglePointEnergyResult, error) {
	orbitals, err := ZipOrbitals(moEnergies, moOccupancies)
	if err != nil {
		return nil, err
	}
	return &SinglePointEnergyResult{Energy: energy, Converged: converged, Orbitals: orbitals}, nil
}

// MarshalJSON ensures orbitals is always an array, never null.
func (r SinglePointEnergyResult) MarshalJSON() ([]byte, error) {
	type wire SinglePointEnergyResult
	w := wire(r)
	if w.Orbitals == nil {
		w.Orbitals = []Orbital{}
	}
	return json.Marshal(w)
}

// Frontier locates the HOMO and LUMO of the result.
func (r *SinglePointEnergyResult) Frontier() Frontier {
	return FrontierOrbitals(r.Orbitals)
}

// StructureRelaxationResult is the outcome of a geometry optimization.
type StructureRelaxationResult struct {
	Molecule  Molecule  `json:"molecule"`
	Energy    float64   `json:"energy"`
	Converged bool      `json:"converged"`
	Orbitals  []Orbital `json:"orbitals"`
}

// NewStructureRelaxationResult builds a result from raw engine output. The
// optimized positions are rounded to PositionDecimals digits and wrapped in
// a new Molecule carrying the input's charge and multiplicity.
func NewStructureRelaxationResult(input Molecule, symbols []string, positions [][3]float64,
	energy float64, converged bool, moEnergies, moOccupancies []float64,
) (*StructureRelaxationResult, error) {
	if len(symbols) != len(positions) {
		return nil, NewInternalError(fmt.Errorf("%w: %d symbols but %d positions",
			ErrInconsistentOutput, len(symbols), len(positions)))
	}
	if len(symbols) != input.Len() {
		return nil, NewInternalError(fmt.Errorf("%w: optimized geometry has %d atoms, input had %d",
			ErrInconsistentOutput, len(symbols), input.Len()))
	}
	atoms := make([]Atom, len(symbols))
	for i, sym := range symbols {
		pos, err := RoundPosition(positions[i])
		if err != nil {
			return nil, NewInternalError(fmt.Errorf("%w: atom %d: %v", ErrInconsistentOutput, i, err))
		}
		a, err := NewAtom(sym, pos)
		if err != nil {
			return nil, NewInternalError(fmt.Errorf("%w: atom %d: %v", ErrInconsistentOutput, i, err))
		}
		atoms[i] = a
	}
	mol, err := NewMolecule(atoms, input.Charge(), input.SpinMultiplicity())
	if err != nil {
		return nil, NewInternalError(fmt.Errorf("%w: optimized molecule: %v", ErrInconsistentOutput, err))
	}
	orbitals, err := ZipOrbitals(moEnergies, moOccupancies)
	if err != nil {
		return nil, err
	}
	return &StructureRelaxationResult{Molecule: mol, Energy: energy, Converged: converged, Orbitals: orbitals}, nil
}

// MarshalJSON ensures orbitals is always an array, never null.
func (r StructureRelaxationResult) MarshalJSON() ([]byte, error) {
	type wire StructureRelaxationResult
	w := wire(r)
	if w.Orbitals == nil {
		w.Orbitals = []Orbital{}
	}
	return json.Marshal(w)
}

// Frontier locates the HOMO and LUMO of the result.
func (r *StructureRelaxationResult) Frontier() Frontier {
	return FrontierOrbitals(r.Orbitals)
}

// RoundPosition rounds each coordinate half away from zero to
// PositionDecimals digits using exact decimal arithmetic.
func RoundPosition(p [3]float64) ([3]float64, error) {
	var out [3]float64
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return out, fmt.Errorf("coordinate %d is not finite", i)
		}
		out[i], _ = decimal.NewFromFloat(v).Round(PositionDecimals).Float64()
	}
	return out, nil
}

// Frontier holds the highest occupied and lowest unoccupied orbitals.
// Indices are -1 when the orbital does not exist.
type Frontier struct {
	HOMOIndex int
	LUMOIndex int
	HOMO      Orbital
	LUMO      Orbital
}

// Gap returns the HOMO-LUMO gap in hartree; ok is false if either orbital
// is missing.
func (f Frontier) Gap() (gap float64, ok bool) {
	if f.HOMOIndex < 0 || f.LUMOIndex < 0 {
		return 0, false
	}
	return f.LUMO.Energy - f.HOMO.Energy, true
}

// FrontierOrbitals finds the last orbital with positive occupancy (HOMO)
// and the orbital right after it (LUMO).
func FrontierOrbitals(orbitals []Orbital) Frontier {
	f := Frontier{HOMOIndex: -1, LUMOIndex: -1}
	for i := len(orbitals) - 1; i >= 0; i-- {
		if orbitals[i].Occupancy > 0 {
			f.HOMOIndex = i
			f.HOMO = orbitals[i]
			break
		}
	}
	if next := f.HOMOIndex + 1; next < len(orbitals) {
		f.LUMOIndex = next
		f.LUMO = orbitals[next]
	}
	return f
}

// CalculationResult is a result of either kind. Exactly one of Energy and
// Relaxation is set, matching Kind.
type CalculationResult struct {
	Kind       CalculationKind            `json:"kind"`
	Energy     *SinglePointEnergyResult   `json:"energy,omitempty"`
	Relaxation *StructureRelaxationResult `json:"relaxation,omitempty"`
}

// Payload returns the kind-specific result for rendering on the wire.
func (r *CalculationResult) Payload() any {
	if r.Relaxation != nil {
		return r.Relaxation
	}
	return r.Energy
}

// Orbitals returns the orbitals of whichever result is set.
func (r *CalculationResult) Orbitals() []Orbital {
	switch {
	case r.Relaxation != nil:
		return r.Relaxation.Orbitals
	case r.Energy != nil:
		return r.Energy.Orbitals
	}
	return nil
}
