package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"
)

// DecodeObject reads a single JSON object, keeping numbers as json.Number so
// that integer fields can be told apart from floats. Anything other than an
// object is reported as a structural error. Read errors stay reachable
// through errors.As on the returned error.
func DecodeObject(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewStructuralError("", "no JSON body found")
		}
		e := NewStructuralError("", "malformed JSON: "+err.Error())
		e.cause = err
		return nil, e
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, NewStructuralError("", "no JSON body found: payload must be a JSON object")
	}
	if dec.More() {
		return nil, NewStructuralError("", "unexpected data after JSON object")
	}
	return obj, nil
}

var legacyTopLevelKeys = []string{"functional", "basis_set", "charge", "spin_multiplicity"}

// ParseEnergyRequest validates a wire payload into an EnergyRequest. The
// payload is read but never modified.
func ParseEnergyRequest(payload map[string]any) (*EnergyRequest, error) {
	if err := rejectLegacySchema(payload); err != nil {
		return nil, err
	}
	mol, err := parseMoleculeField(payload)
	if err != nil {
		return nil, err
	}
	cfg, err := parseConfigField(payload)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknownKeys("", payload, "molecule", "config"); err != nil {
		return nil, err
	}
	return &EnergyRequest{Molecule: mol, Config: cfg}, nil
}

// ParseOptimizationRequest validates a wire payload into an
// OptimizationRequest. The payload is read but never modified.
func ParseOptimizationRequest(payload map[string]any) (*OptimizationRequest, error) {
	if err := rejectLegacySchema(payload); err != nil {
		return nil, err
	}
	mol, err := parseMoleculeField(payload)
	if err != nil {
		return nil, err
	}
	cfg, err := parseConfigField(payload)
	if err != nil {
		return nil, err
	}
	solverCfg, err := parseSolverFields(payload)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknownKeys("", payload, "molecule", "config", "solver", "conv_params"); err != nil {
		return nil, err
	}
	return &OptimizationRequest{Molecule: mol, Config: cfg, SolverConfig: solverCfg}, nil
}

func rejectLegacySchema(payload map[string]any) error {
	for _, k := range legacyTopLevelKeys {
		if _, ok := payload[k]; ok {
			return NewStructuralError(k, fmt.Sprintf(
				"%q is not accepted at the top level: charge and spin_multiplicity belong in molecule, functional and basis_set in config", k))
		}
	}
	return nil
}

func parseMoleculeField(payload map[string]any) (Molecule, error) {
	raw, ok := payload["molecule"]
	if !ok || raw == nil {
		return Molecule{}, NewStructuralError("molecule", "missing molecule")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Molecule{}, NewStructuralError("molecule", "molecule is not a JSON object")
	}
	return parseMolecule("molecule.", obj)
}

// ParseMolecule validates a molecule mapping: atoms, then charge and
// spin_multiplicity, then the parity rule.
func ParseMolecule(obj map[string]any) (Molecule, error) {
	return parseMolecule("", obj)
}

func parseMolecule(prefix string, obj map[string]any) (Molecule, error) {
	raw, ok := obj["atoms"]
	if !ok || raw == nil {
		return Molecule{}, NewStructuralError(prefix+"atoms", "missing atoms key in molecule")
	}
	list, ok := raw.([]any)
	if !ok {
		return Molecule{}, NewStructuralError(prefix+"atoms", "atoms is not a list")
	}
	if len(list) == 0 {
		return Molecule{}, NewStructuralError(prefix+"atoms", "molecule has no atoms")
	}
	atoms := make([]Atom, 0, len(list))
	for i, item := range list {
		a, err := parseAtom(fmt.Sprintf("%satoms[%d]", prefix, i), item)
		if err != nil {
			return Molecule{}, err
		}
		atoms = append(atoms, a)
	}

	charge, err := requireInt(obj, prefix, "charge")
	if err != nil {
		return Molecule{}, err
	}
	multiplicity, err := requireInt(obj, prefix, "spin_multiplicity")
	if err != nil {
		return Molecule{}, err
	}
	if err := rejectUnknownKeys(prefix, obj, "atoms", "charge", "spin_multiplicity"); err != nil {
		return Molecule{}, err
	}

	mol, err := NewMolecule(atoms, charge, multiplicity)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == KindFieldType {
			apiErr.Param = prefix + "spin_multiplicity"
		}
		return Molecule{}, err
	}
	return mol, nil
}

func parseAtom(param string, item any) (Atom, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return Atom{}, NewStructuralError(param, "atom is not a JSON object")
	}

	rawSym, ok := obj["symbol"]
	if !ok || rawSym == nil {
		return Atom{}, NewStructuralError(param+".symbol", "atom is missing symbol")
	}
	symbol, ok := rawSym.(string)
	if !ok {
		return Atom{}, NewFieldTypeError(param+".symbol", "symbol must be a string")
	}

	rawPos, ok := obj["position"]
	if !ok || rawPos == nil {
		return Atom{}, NewStructuralError(param+".position", "atom is missing position")
	}
	coords, ok := rawPos.([]any)
	if !ok {
		return Atom{}, NewStructuralError(param+".position", "position is not a list")
	}
	if len(coords) != 3 {
		return Atom{}, NewStructuralError(param+".position",
			fmt.Sprintf("position must have exactly 3 coordinates, got %d", len(coords)))
	}
	var pos [3]float64
	for i, c := range coords {
		f, ok := asFloat(c)
		if !ok {
			return Atom{}, NewFieldTypeError(fmt.Sprintf("%s.position[%d]", param, i), "coordinate must be a number")
		}
		pos[i] = f
	}

	if err := rejectUnknownKeys(param+".", obj, "symbol", "position"); err != nil {
		return Atom{}, err
	}

	a, err := NewAtom(symbol, pos)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.Param = param + ".symbol"
		}
		return Atom{}, err
	}
	return a, nil
}

func parseConfigField(payload map[string]any) (FunctionalConfig, error) {
	raw, ok := payload["config"]
	if !ok || raw == nil {
		return FunctionalConfig{}, NewStructuralError("config", "missing config")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return FunctionalConfig{}, NewStructuralError("config", "config is not a JSON object")
	}
	functional, err := requireString(obj, "config.", "functional")
	if err != nil {
		return FunctionalConfig{}, err
	}
	basis, err := requireString(obj, "config.", "basis_set")
	if err != nil {
		return FunctionalConfig{}, err
	}
	if err := rejectUnknownKeys("config.", obj, "functional", "basis_set"); err != nil {
		return FunctionalConfig{}, err
	}
	return FunctionalConfig{Functional: functional, BasisSet: basis}, nil
}

func parseSolverFields(payload map[string]any) (SolverConfig, error) {
	name, err := requireString(payload, "", "solver")
	if err != nil {
		return SolverConfig{}, err
	}
	solver, ok := ParseSolver(name)
	if !ok {
		return SolverConfig{}, NewUnsupportedValueError("solver",
			fmt.Sprintf("unsupported solver %q (supported: %s, %s)", name, SolverGeomeTRIC, SolverBerny))
	}

	overrides := map[string]float64{}
	if raw, ok := payload["conv_params"]; ok && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return SolverConfig{}, NewStructuralError("conv_params", "conv_params is not a JSON object")
		}
		defaults := solver.DefaultConvParams()
		for _, k := range slices.Sorted(maps.Keys(obj)) {
			if _, known := defaults[k]; !known {
				return SolverConfig{}, NewUnsupportedValueError("conv_params."+k,
					fmt.Sprintf("unsupported convergence parameter %q for solver %s", k, solver))
			}
			f, ok := asFloat(obj[k])
			if !ok {
				return SolverConfig{}, NewFieldTypeError("conv_params."+k, k+" must be a number")
			}
			overrides[k] = f
		}
	}
	return NewSolverConfig(solver, overrides)
}

func requireInt(obj map[string]any, prefix, key string) (int, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return 0, NewStructuralError(prefix+key, "missing "+key)
	}
	n, ok := asInt(raw)
	if !ok {
		return 0, NewFieldTypeError(prefix+key, key+" must be an integer")
	}
	return n, nil
}

func requireString(obj map[string]any, prefix, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", NewStructuralError(prefix+key, "missing "+key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", NewFieldTypeError(prefix+key, key+" must be a string")
	}
	if s == "" {
		return "", NewStructuralError(prefix+key, key+" must not be empty")
	}
	return s, nil
}

func rejectUnknownKeys(prefix string, obj map[string]any, allowed ...string) error {
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		if !slices.Contains(allowed, k) {
			return NewStructuralError(prefix+k, "unknown field "+quote(k))
		}
	}
	return nil
}

// asInt accepts JSON integers and integral Go numbers. Booleans and
// fractional values are rejected.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 0)
		if err != nil {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func quote(s string) string {
	return strconv.Quote(s)
}
