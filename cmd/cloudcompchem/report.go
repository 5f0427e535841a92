package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/geometry"
)

const hartreeToEV = "27.211386245988"

// summarize renders a human-readable report of a result payload: energy,
// convergence, frontier orbitals and, for optimizations, the final bonds
// and how far the atoms moved.
func summarize(kind api.CalculationKind, input api.Molecule, payload json.RawMessage) (string, error) {
	var sb strings.Builder
	switch kind {
	case api.CalculationOptimization:
		var res api.StructureRelaxationResult
		if err := json.Unmarshal(payload, &res); err != nil {
			return "", fmt.Errorf("decoding optimization result: %w", err)
		}
		writeEnergy(&sb, res.Energy, res.Converged, res.Frontier())
		if rmsd, err := geometry.RMSD(input, res.Molecule); err == nil {
			fmt.Fprintf(&sb, "RMSD from input:  %.4f A\n", rmsd)
		}
		if bonds := geometry.Report(res.Molecule); bonds != "" {
			sb.WriteString("Bonds (A):\n")
			for _, line := range strings.Split(strings.TrimRight(bonds, "\n"), "\n") {
				sb.WriteString("  " + line + "\n")
			}
		}
	default:
		var res api.SinglePointEnergyResult
		if err := json.Unmarshal(payload, &res); err != nil {
			return "", fmt.Errorf("decoding energy result: %w", err)
		}
		writeEnergy(&sb, res.Energy, res.Converged, res.Frontier())
	}
	return sb.String(), nil
}

func writeEnergy(sb *strings.Builder, energy float64, converged bool, f api.Frontier) {
	fmt.Fprintf(sb, "Total energy:     %.8f Eh\n", energy)
	fmt.Fprintf(sb, "Converged:        %t\n", converged)
	if f.HOMOIndex >= 0 {
		fmt.Fprintf(sb, "HOMO (#%d):       %.6f Eh\n", f.HOMOIndex+1, f.HOMO.Energy)
	}
	if f.LUMOIndex >= 0 {
		fmt.Fprintf(sb, "LUMO (#%d):       %.6f Eh\n", f.LUMOIndex+1, f.LUMO.Energy)
	}
	if gap, ok := f.Gap(); ok {
		ev := decimal.NewFromFloat(gap).Mul(decimal.RequireFromString(hartreeToEV)).Round(3)
		fmt.Fprintf(sb, "HOMO-LUMO gap:    %.6f Eh (%s eV)\n", gap, ev.StringFixed(3))
	}
}
