// Package geometry derives structural summaries from a molecule: the
// interatomic distance matrix, distance-based bonds and the centroid.
package geometry

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

const (
	// Two atoms are bonded when their distance is below the sum of their
	// covalent radii plus bondTolerance and above tooClose (angstrom).
	bondTolerance = 0.45
	tooClose      = 0.63
)

// Covalent radii in angstrom (Cordero et al. 2008). Elements missing here
// never form bonds.
var covalentRadius = map[string]float64{
	"H": 0.31, "He": 0.28,
	"Li": 1.28, "Be": 0.96, "B": 0.84, "C": 0.76, "N": 0.71, "O": 0.66, "F": 0.57, "Ne": 0.58,
	"Na": 1.66, "Mg": 1.41, "Al": 1.21, "Si": 1.11, "P": 1.07, "S": 1.05, "Cl": 1.02, "Ar": 1.06,
	"K": 2.03, "Ca": 1.76, "Sc": 1.70, "Ti": 1.60, "V": 1.53, "Cr": 1.39, "Mn": 1.61, "Fe": 1.52,
	"Co": 1.50, "Ni": 1.24, "Cu": 1.32, "Zn": 1.22, "Ga": 1.22, "Ge": 1.20, "As": 1.19, "Se": 1.20,
	"Br": 1.20, "Kr": 1.16, "Rb": 2.20, "Sr": 1.95, "Ag": 1.45, "Cd": 1.44, "I": 1.39, "Xe": 1.40,
	"Pt": 1.36, "Au": 1.36, "Hg": 1.32,
}

// Bond connects atoms I and J (I < J) at Distance angstrom.
type Bond struct {
	I, J     int
	Distance float64
}

// Coordinates returns the positions of mol as an N×3 matrix.
func Coordinates(mol api.Molecule) *mat.Dense {
	m := mat.NewDense(mol.Len(), 3, nil)
	for i, p := range mol.Positions() {
		m.SetRow(i, p[:])
	}
	return m
}

// DistanceMatrix returns the symmetric matrix of interatomic distances.
func DistanceMatrix(mol api.Molecule) *mat.SymDense {
	n := mol.Len()
	positions := mol.Positions()
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, floats.Distance(positions[i][:], positions[j][:], 2))
		}
	}
	return d
}

// Bonds assigns bonds by the covalent radius criterion, ordered by atom
// index pairs.
func Bonds(mol api.Molecule) []Bond {
	d := DistanceMatrix(mol)
	symbols := mol.Symbols()
	var bonds []Bond
	for i := range symbols {
		ri, ok := covalentRadius[symbols[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(symbols); j++ {
			rj, ok := covalentRadius[symbols[j]]
			if !ok {
				continue
			}
			dist := d.At(i, j)
			if dist > tooClose && dist < ri+rj+bondTolerance {
				bonds = append(bonds, Bond{I: i, J: j, Distance: dist})
			}
		}
	}
	return bonds
}

// Centroid returns the unweighted mean position of the atoms.
func Centroid(mol api.Molecule) [3]float64 {
	var c [3]float64
	if mol.Len() == 0 {
		return c
	}
	coords := Coordinates(mol)
	for k := 0; k < 3; k++ {
		c[k] = floats.Sum(mat.Col(nil, k, coords)) / float64(mol.Len())
	}
	return c
}

// RMSD is the root mean square displacement between two geometries of the
// same molecule, without alignment. It is used to report how far an
// optimization moved the atoms.
func RMSD(a, b api.Molecule) (float64, error) {
	if a.Len() != b.Len() {
		return 0, fmt.Errorf("geometry: cannot compare %d atoms with %d", a.Len(), b.Len())
	}
	if a.Len() == 0 {
		return 0, nil
	}
	var diff mat.Dense
	diff.Sub(Coordinates(a), Coordinates(b))
	return math.Sqrt(mat.Sum(squared(&diff)) / float64(a.Len())), nil
}

func squared(m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.MulElem(m, m)
	return &out
}

// Report renders the bond list of mol, one bond per line, e.g.
// "O1-H2 0.9600".
func Report(mol api.Molecule) string {
	symbols := mol.Symbols()
	var sb strings.Builder
	for _, b := range Bonds(mol) {
		fmt.Fprintf(&sb, "%s%d-%s%d %.4f\n", symbols[b.I], b.I+1, symbols[b.J], b.J+1, b.Distance)
	}
	return sb.String()
}
