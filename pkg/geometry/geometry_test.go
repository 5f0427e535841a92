package geometry

import (
	"math"
	"testing"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

func molecule(t *testing.T, symbols []string, positions [][3]float64) api.Molecule {
	t.Helper()
	atoms := make([]api.Atom, len(symbols))
	for i, s := range symbols {
		a, err := api.NewAtom(s, positions[i])
		if err != nil {
			t.Fatalf("NewAtom(%s): %v", s, err)
		}
		atoms[i] = a
	}
	mol, err := api.NewMolecule(atoms, 0, 1)
	if err != nil {
		t.Fatalf("NewMolecule: %v", err)
	}
	return mol
}

func water(t *testing.T) api.Molecule {
	return molecule(t, []string{"O", "H", "H"}, [][3]float64{{0, 0, 0}, {0, 1, 0}, {0, 0, 1}})
}

func TestDistanceMatrix(t *testing.T) {
	d := DistanceMatrix(water(t))
	if n := d.SymmetricDim(); n != 3 {
		t.Fatalf("expected 3x3, got %d", n)
	}
	tests := []struct {
		i, j int
		want float64
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0, 2, 1},
		{1, 2, math.Sqrt2},
		{2, 1, math.Sqrt2},
	}
	for _, tt := range tests {
		if got := d.At(tt.i, tt.j); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("d(%d,%d) = %v, want %v", tt.i, tt.j, got, tt.want)
		}
	}
}

func TestBonds(t *testing.T) {
	bonds := Bonds(water(t))
	if len(bonds) != 2 {
		t.Fatalf("expected 2 O-H bonds, got %+v", bonds)
	}
	for _, b := range bonds {
		if b.I != 0 || b.Distance != 1 {
			t.Errorf("unexpected bond %+v", b)
		}
	}

	h2 := molecule(t, []string{"H", "H"}, [][3]float64{{0, 0, 0}, {0, 0, 0.74}})
	if got := Bonds(h2); len(got) != 1 {
		t.Errorf("expected H-H bond, got %+v", got)
	}

	// Atoms closer than the cutoff are not bonded.
	clash := molecule(t, []string{"H", "H"}, [][3]float64{{0, 0, 0}, {0, 0, 0.3}})
	if got := Bonds(clash); len(got) != 0 {
		t.Errorf("expected no bond for overlapping atoms, got %+v", got)
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid(water(t))
	want := [3]float64{0, 1.0 / 3, 1.0 / 3}
	for k := range c {
		if math.Abs(c[k]-want[k]) > 1e-12 {
			t.Errorf("centroid[%d] = %v, want %v", k, c[k], want[k])
		}
	}
}

func TestRMSD(t *testing.T) {
	a := water(t)
	b := molecule(t, []string{"O", "H", "H"}, [][3]float64{{0, 0, 1}, {0, 1, 1}, {0, 0, 2}})

	got, err := RMSD(a, b)
	if err != nil {
		t.Fatalf("RMSD: %v", err)
	}
	if math.Abs(got-1) > 1e-12 {
		t.Errorf("expected RMSD 1 for a unit translation, got %v", got)
	}

	h2 := molecule(t, []string{"H", "H"}, [][3]float64{{0, 0, 0}, {0, 0, 0.74}})
	if _, err := RMSD(a, h2); err == nil {
		t.Error("expected error for different atom counts")
	}
}

func TestReport(t *testing.T) {
	want := "O1-H2 1.0000\nO1-H3 1.0000\n"
	if got := Report(water(t)); got != want {
		t.Errorf("Report() = %q, want %q", got, want)
	}
}
