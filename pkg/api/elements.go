package api

import "fmt"

// elementCount is the number of elements the engine accepts (H through Cf).
const elementCount = 98

// elementSymbols lists the recognized symbols ordered by atomic number;
// the atomic number of a symbol is its index plus one.
var elementSymbols = [...]string{
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn", "Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba",
	"La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm", "Yb", "Lu",
	"Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra",
	"Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf",
}

var atomicNumbers = buildElementTable(elementSymbols[:])

// buildElementTable indexes symbols by atomic number and panics if the
// table is not exactly elementCount distinct, non-empty symbols.
func buildElementTable(symbols []string) map[string]int {
	table, err := indexElements(symbols)
	if err != nil {
		panic("api: " + err.Error())
	}
	return table
}

func indexElements(symbols []string) (map[string]int, error) {
	if len(symbols) != elementCount {
		return nil, fmt.Errorf("element table has %d entries, want %d", len(symbols), elementCount)
	}
	table := make(map[string]int, len(symbols))
	for i, sym := range symbols {
		if sym == "" {
			return nil, fmt.Errorf("element table has a gap at atomic number %d", i+1)
		}
		if prev, dup := table[sym]; dup {
			return nil, fmt.Errorf("element %q listed at atomic numbers %d and %d", sym, prev, i+1)
		}
		table[sym] = i + 1
	}
	return table, nil
}

// AtomicNumber returns the atomic number of symbol. Symbols are case sensitive.
func AtomicNumber(symbol string) (int, bool) {
	z, ok := atomicNumbers[symbol]
	return z, ok
}

// ElementSymbol returns the symbol for atomic number z (1-based).
func ElementSymbol(z int) (string, bool) {
	if z < 1 || z > elementCount {
		return "", false
	}
	return elementSymbols[z-1], true
}
