package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Atom is a single nucleus: an element symbol and a position in angstrom.
// The zero value is not a valid Atom; use NewAtom.
type Atom struct {
	symbol   string
	position [3]float64
}

// NewAtom creates an Atom, rejecting symbols outside the element table.
func NewAtom(symbol string, position [3]float64) (Atom, error) {
	if _, ok := AtomicNumber(symbol); !ok {
		return Atom{}, NewUnsupportedValueError("symbol", "unknown element symbol "+strconv.Quote(symbol))
	}
	return Atom{symbol: symbol, position: position}, nil
}

// Symbol returns the element symbol.
func (a Atom) Symbol() string { return a.symbol }

// Position returns the cartesian coordinates in angstrom.
func (a Atom) Position() [3]float64 { return a.position }

// AtomicNumber returns the atomic number of the atom's element.
func (a Atom) AtomicNumber() int {
	z, _ := AtomicNumber(a.symbol)
	return z
}

// String renders the atom as "<symbol> <x> <y> <z>".
func (a Atom) String() string {
	var b strings.Builder
	a.writeTo(&b)
	return b.String()
}

func (a Atom) writeTo(b *strings.Builder) {
	b.WriteString(a.symbol)
	for _, v := range a.position {
		b.WriteByte(' ')
		b.WriteString(formatCoordinate(v))
	}
}

// formatCoordinate prints the shortest decimal that round-trips, never in
// exponent notation, so integral values render as "0" or "1".
func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (a Atom) toMap() map[string]any {
	return map[string]any{
		"symbol":   a.symbol,
		"position": []any{a.position[0], a.position[1], a.position[2]},
	}
}

// Molecule is an ordered list of atoms with a total charge and spin
// multiplicity. Construction enforces that the electron count and the
// multiplicity have matching parity. Molecules are never modified after
// construction.
type Molecule struct {
	atoms            []Atom
	charge           int
	spinMultiplicity int
}

// NewMolecule validates and creates a Molecule. The atoms slice is copied.
//
// A parity mismatch between (Z - charge) and (spinMultiplicity - 1) yields an
// APIError of kind KindSpinChargeViolation carrying the offending values.
// A molecule needs at least one atom.
func NewMolecule(atoms []Atom, charge, spinMultiplicity int) (Molecule, error) {
	if len(atoms) == 0 {
		return Molecule{}, NewStructuralError("molecule.atoms", "molecule has no atoms")
	}
	electrons := -charge
	for _, a := range atoms {
		electrons += a.AtomicNumber()
	}
	if electrons&1 != (spinMultiplicity-1)&1 {
		return Molecule{}, NewSpinChargeError(charge, spinMultiplicity, electrons)
	}
	if spinMultiplicity < 1 {
		return Molecule{}, NewFieldTypeError("molecule.spin_multiplicity", "spin_multiplicity must be a positive integer")
	}
	return Molecule{
		atoms:            append([]Atom(nil), atoms...),
		charge:           charge,
		spinMultiplicity: spinMultiplicity,
	}, nil
}

// Atoms returns a copy of the atoms in order.
func (m Molecule) Atoms() []Atom {
	return append([]Atom(nil), m.atoms...)
}

// Len returns the number of atoms.
func (m Molecule) Len() int { return len(m.atoms) }

// Atom returns the i-th atom.
func (m Molecule) Atom(i int) Atom { return m.atoms[i] }

// Charge returns the total charge.
func (m Molecule) Charge() int { return m.charge }

// SpinMultiplicity returns 2S+1.
func (m Molecule) SpinMultiplicity() int { return m.spinMultiplicity }

// Spin returns 2S, the number of unpaired electrons.
func (m Molecule) Spin() int { return m.spinMultiplicity - 1 }

// Electrons returns the total electron count, Z - charge.
func (m Molecule) Electrons() int {
	n := -m.charge
	for _, a := range m.atoms {
		n += a.AtomicNumber()
	}
	return n
}

// Symbols returns the element symbols in atom order.
func (m Molecule) Symbols() []string {
	out := make([]string, len(m.atoms))
	for i, a := range m.atoms {
		out[i] = a.symbol
	}
	return out
}

// Positions returns the atom coordinates in atom order.
func (m Molecule) Positions() [][3]float64 {
	out := make([][3]float64, len(m.atoms))
	for i, a := range m.atoms {
		out[i] = a.position
	}
	return out
}

// String renders the molecule in the engine's input format:
// atoms joined by "; ", e.g. "O 0 0 0; H 0 1 0; H 0 0 1".
func (m Molecule) String() string {
	var b strings.Builder
	for i, a := range m.atoms {
		if i > 0 {
			b.WriteString("; ")
		}
		a.writeTo(&b)
	}
	return b.String()
}

// Equal reports whether two molecules have identical atoms, charge and
// multiplicity.
func (m Molecule) Equal(o Molecule) bool {
	if m.charge != o.charge || m.spinMultiplicity != o.spinMultiplicity || len(m.atoms) != len(o.atoms) {
		return false
	}
	for i := range m.atoms {
		if m.atoms[i] != o.atoms[i] {
			return false
		}
	}
	return true
}

// ToMap returns the wire mapping accepted by ParseMolecule.
func (m Molecule) ToMap() map[string]any {
	atoms := make([]any, len(m.atoms))
	for i, a := range m.atoms {
		atoms[i] = a.toMap()
	}
	return map[string]any{
		"atoms":             atoms,
		"charge":            m.charge,
		"spin_multiplicity": m.spinMultiplicity,
	}
}

type atomWire struct {
	Symbol   string     `json:"symbol"`
	Position [3]float64 `json:"position"`
}

type moleculeWire struct {
	Atoms            []atomWire `json:"atoms"`
	Charge           int        `json:"charge"`
	SpinMultiplicity int        `json:"spin_multiplicity"`
}

// MarshalJSON encodes the molecule in its wire form.
func (m Molecule) MarshalJSON() ([]byte, error) {
	w := moleculeWire{
		Atoms:            make([]atomWire, len(m.atoms)),
		Charge:           m.charge,
		SpinMultiplicity: m.spinMultiplicity,
	}
	for i, a := range m.atoms {
		w.Atoms[i] = atomWire{Symbol: a.symbol, Position: a.position}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes and validates a molecule through ParseMolecule.
func (m *Molecule) UnmarshalJSON(data []byte) error {
	payload, err := DecodeObject(bytes.NewReader(data))
	if err != nil {
		return err
	}
	parsed, err := ParseMolecule(payload)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
