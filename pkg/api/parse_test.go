package api

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func waterPayload() map[string]any {
	return map[string]any{
		"atoms": []any{
			map[string]any{"symbol": "O", "position": []any{0, 0, 0}},
			map[string]any{"symbol": "H", "position": []any{0, 1, 0}},
			map[string]any{"symbol": "H", "position": []any{0, 0, 1}},
		},
		"charge":            0,
		"spin_multiplicity": 1,
	}
}

func energyPayload() map[string]any {
	return map[string]any{
		"molecule": waterPayload(),
		"config":   map[string]any{"functional": "pbe,pbe", "basis_set": "ccpvdz"},
	}
}

func optimizationPayload() map[string]any {
	p := energyPayload()
	p["solver"] = "geomeTRIC"
	return p
}

func molecule(p map[string]any) map[string]any {
	return p["molecule"].(map[string]any)
}

func atom(p map[string]any, i int) map[string]any {
	return molecule(p)["atoms"].([]any)[i].(map[string]any)
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	m, err := DecodeObject(strings.NewReader(s))
	if err != nil {
		t.Fatalf("DecodeObject: %v", err)
	}
	return m
}

// ---------------------------------------------------------------------------
// TestParseEnergyRequest
// ---------------------------------------------------------------------------

func TestParseEnergyRequest(t *testing.T) {
	req, err := ParseEnergyRequest(energyPayload())
	if err != nil {
		t.Fatalf("ParseEnergyRequest: %v", err)
	}
	if req.Molecule.String() != "O 0 0 0; H 0 1 0; H 0 0 1" {
		t.Errorf("molecule = %q", req.Molecule.String())
	}
	if req.Config != (FunctionalConfig{Functional: "pbe,pbe", BasisSet: "ccpvdz"}) {
		t.Errorf("config = %+v", req.Config)
	}
}

func TestParseEnergyRequestErrors(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(p map[string]any)
		wantKind  ErrorKind
		wantParam string
	}{
		{
			name:      "missing molecule",
			modify:    func(p map[string]any) { delete(p, "molecule") },
			wantKind:  KindStructural,
			wantParam: "molecule",
		},
		{
			name:      "molecule not an object",
			modify:    func(p map[string]any) { p["molecule"] = "H2O" },
			wantKind:  KindStructural,
			wantParam: "molecule",
		},
		{
			name:      "missing atoms",
			modify:    func(p map[string]any) { delete(molecule(p), "atoms") },
			wantKind:  KindStructural,
			wantParam: "molecule.atoms",
		},
		{
			name:      "atoms not a list",
			modify:    func(p map[string]any) { molecule(p)["atoms"] = map[string]any{} },
			wantKind:  KindStructural,
			wantParam: "molecule.atoms",
		},
		{
			name:      "empty atoms",
			modify:    func(p map[string]any) { molecule(p)["atoms"] = []any{} },
			wantKind:  KindStructural,
			wantParam: "molecule.atoms",
		},
		{
			name:      "atom not an object",
			modify:    func(p map[string]any) { molecule(p)["atoms"].([]any)[1] = "H" },
			wantKind:  KindStructural,
			wantParam: "molecule.atoms[1]",
		},
		{
			name:      "unknown element",
			modify:    func(p map[string]any) { atom(p, 2)["symbol"] = "Xx" },
			wantKind:  KindUnsupportedValue,
			wantParam: "molecule.atoms[2].symbol",
		},
		{
			name:      "symbol not a string",
			modify:    func(p map[string]any) { atom(p, 0)["symbol"] = 8 },
			wantKind:  KindFieldType,
			wantParam: "molecule.atoms[0].symbol",
		},
		{
			name:      "position too short",
			modify:    func(p map[string]any) { atom(p, 0)["position"] = []any{0, 0} },
			wantKind:  KindStructural,
			wantParam: "molecule.atoms[0].position",
		},
		{
			name:      "position coordinate not a number",
			modify:    func(p map[string]any) { atom(p, 0)["position"] = []any{0, "1", 0} },
			wantKind:  KindFieldType,
			wantParam: "molecule.atoms[0].position[1]",
		},
		{
			name:      "unknown atom field",
			modify:    func(p map[string]any) { atom(p, 0)["mass"] = 16 },
			wantKind:  KindStructural,
			wantParam: "molecule.atoms[0].mass",
		},
		{
			name:      "charge not an integer",
			modify:    func(p map[string]any) { molecule(p)["charge"] = 0.5 },
			wantKind:  KindFieldType,
			wantParam: "molecule.charge",
		},
		{
			name:      "charge is a string",
			modify:    func(p map[string]any) { molecule(p)["charge"] = "0" },
			wantKind:  KindFieldType,
			wantParam: "molecule.charge",
		},
		{
			name:      "charge is a bool",
			modify:    func(p map[string]any) { molecule(p)["charge"] = false },
			wantKind:  KindFieldType,
			wantParam: "molecule.charge",
		},
		{
			name:      "missing spin multiplicity",
			modify:    func(p map[string]any) { delete(molecule(p), "spin_multiplicity") },
			wantKind:  KindStructural,
			wantParam: "molecule.spin_multiplicity",
		},
		{
			name:      "spin multiplicity not an integer",
			modify:    func(p map[string]any) { molecule(p)["spin_multiplicity"] = 1.5 },
			wantKind:  KindFieldType,
			wantParam: "molecule.spin_multiplicity",
		},
		{
			name:      "parity violation",
			modify:    func(p map[string]any) { molecule(p)["spin_multiplicity"] = 2 },
			wantKind:  KindSpinChargeViolation,
			wantParam: "molecule",
		},
		{
			name:      "negative multiplicity with matching parity",
			modify:    func(p map[string]any) { molecule(p)["spin_multiplicity"] = -1 },
			wantKind:  KindFieldType,
			wantParam: "molecule.spin_multiplicity",
		},
		{
			name:      "missing config",
			modify:    func(p map[string]any) { delete(p, "config") },
			wantKind:  KindStructural,
			wantParam: "config",
		},
		{
			name:      "config not an object",
			modify:    func(p map[string]any) { p["config"] = []any{"pbe"} },
			wantKind:  KindStructural,
			wantParam: "config",
		},
		{
			name:      "missing basis set",
			modify:    func(p map[string]any) { delete(p["config"].(map[string]any), "basis_set") },
			wantKind:  KindStructural,
			wantParam: "config.basis_set",
		},
		{
			name:      "functional not a string",
			modify:    func(p map[string]any) { p["config"].(map[string]any)["functional"] = 1 },
			wantKind:  KindFieldType,
			wantParam: "config.functional",
		},
		{
			name:      "unknown config field",
			modify:    func(p map[string]any) { p["config"].(map[string]any)["grid"] = 3 },
			wantKind:  KindStructural,
			wantParam: "config.grid",
		},
		{
			name:      "unknown top-level field",
			modify:    func(p map[string]any) { p["priority"] = "high" },
			wantKind:  KindStructural,
			wantParam: "priority",
		},
		{
			name:      "legacy flat schema",
			modify:    func(p map[string]any) { p["functional"] = "b3lyp" },
			wantKind:  KindStructural,
			wantParam: "functional",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := energyPayload()
			tt.modify(p)
			_, err := ParseEnergyRequest(p)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Type != ErrorTypeInvalidRequest {
				t.Errorf("Type = %q, want %q", apiErr.Type, ErrorTypeInvalidRequest)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q (%s)", apiErr.Kind, tt.wantKind, apiErr.Message)
			}
			if apiErr.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", apiErr.Param, tt.wantParam)
			}
		})
	}
}

func TestParseEnergyRequestWaterZeroMultiplicity(t *testing.T) {
	p := energyPayload()
	molecule(p)["spin_multiplicity"] = 0
	_, err := ParseEnergyRequest(p)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindSpinChargeViolation {
		t.Fatalf("want spin/charge violation, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "10 and spin -1") {
		t.Errorf("Message = %q, want electron count 10 and spin -1", apiErr.Message)
	}
	if apiErr.Violation.Charge != 0 || apiErr.Violation.SpinMultiplicity != 0 {
		t.Errorf("Violation = %+v", apiErr.Violation)
	}
}

func TestParseEnergyRequestOrder(t *testing.T) {
	// molecule problems are reported before config problems
	p := energyPayload()
	delete(p, "config")
	molecule(p)["charge"] = "x"
	_, err := ParseEnergyRequest(p)
	apiErr, _ := AsAPIError(err)
	if apiErr == nil || apiErr.Param != "molecule.charge" {
		t.Fatalf("want charge error first, got %v", err)
	}
}

func TestParseDoesNotMutateInput(t *testing.T) {
	p := optimizationPayload()
	p["conv_params"] = map[string]any{"convergence_energy": 1e-7}
	before, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := ParseOptimizationRequest(p); err != nil {
		t.Fatalf("ParseOptimizationRequest: %v", err)
	}
	after, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("payload changed:\nbefore %s\nafter  %s", before, after)
	}
}

// ---------------------------------------------------------------------------
// TestParseOptimizationRequest
// ---------------------------------------------------------------------------

func TestParseOptimizationRequest(t *testing.T) {
	p := optimizationPayload()
	p["conv_params"] = map[string]any{"convergence_grms": 1e-4}

	req, err := ParseOptimizationRequest(p)
	if err != nil {
		t.Fatalf("ParseOptimizationRequest: %v", err)
	}
	if req.SolverConfig.Solver() != SolverGeomeTRIC {
		t.Errorf("solver = %q", req.SolverConfig.Solver())
	}
	params := req.SolverConfig.ConvParams()
	if params["convergence_grms"] != 1e-4 || params["convergence_dmax"] != 1.8e-3 {
		t.Errorf("conv params = %v", params)
	}
}

func TestParseOptimizationRequestDefaults(t *testing.T) {
	p := optimizationPayload()
	p["solver"] = "berny"
	req, err := ParseOptimizationRequest(p)
	if err != nil {
		t.Fatalf("ParseOptimizationRequest: %v", err)
	}
	if !reflect.DeepEqual(req.SolverConfig.ConvParams(), SolverBerny.DefaultConvParams()) {
		t.Errorf("conv params = %v, want berny defaults", req.SolverConfig.ConvParams())
	}
}

func TestParseOptimizationRequestErrors(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(p map[string]any)
		wantKind  ErrorKind
		wantParam string
	}{
		{
			name:      "missing solver",
			modify:    func(p map[string]any) { delete(p, "solver") },
			wantKind:  KindStructural,
			wantParam: "solver",
		},
		{
			name:      "solver not a string",
			modify:    func(p map[string]any) { p["solver"] = 1 },
			wantKind:  KindFieldType,
			wantParam: "solver",
		},
		{
			name:      "unknown solver",
			modify:    func(p map[string]any) { p["solver"] = "lbfgs" },
			wantKind:  KindUnsupportedValue,
			wantParam: "solver",
		},
		{
			name:      "conv params not an object",
			modify:    func(p map[string]any) { p["conv_params"] = []any{1} },
			wantKind:  KindStructural,
			wantParam: "conv_params",
		},
		{
			name:      "conv param of the other solver",
			modify:    func(p map[string]any) { p["conv_params"] = map[string]any{"gradientmax": 1e-3} },
			wantKind:  KindUnsupportedValue,
			wantParam: "conv_params.gradientmax",
		},
		{
			name:      "conv param not a number",
			modify:    func(p map[string]any) { p["conv_params"] = map[string]any{"convergence_gmax": "tight"} },
			wantKind:  KindFieldType,
			wantParam: "conv_params.convergence_gmax",
		},
		{
			name:      "parity violation reported before solver",
			modify:    func(p map[string]any) { molecule(p)["charge"] = 1; p["solver"] = "lbfgs" },
			wantKind:  KindSpinChargeViolation,
			wantParam: "molecule",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := optimizationPayload()
			tt.modify(p)
			_, err := ParseOptimizationRequest(p)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q (%s)", apiErr.Kind, tt.wantKind, apiErr.Message)
			}
			if apiErr.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", apiErr.Param, tt.wantParam)
			}
		})
	}
}

func TestUnsupportedConvParamNamesKey(t *testing.T) {
	p := optimizationPayload()
	p["conv_params"] = map[string]any{"maxsteps": 100}
	_, err := ParseOptimizationRequest(p)
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindUnsupportedValue {
		t.Fatalf("want unsupported value error, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "maxsteps") {
		t.Errorf("Message = %q, want it to name maxsteps", apiErr.Message)
	}
}

// ---------------------------------------------------------------------------
// JSON decoding
// ---------------------------------------------------------------------------

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"object", `{"a": 1}`, false},
		{"empty body", ``, true},
		{"null", `null`, true},
		{"array", `[1, 2]`, true},
		{"malformed", `{"a":`, true},
		{"trailing data", `{"a": 1} {"b": 2}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeObject(strings.NewReader(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeObject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				apiErr, ok := AsAPIError(err)
				if !ok || apiErr.Kind != KindStructural {
					t.Errorf("want structural error, got %v", err)
				}
			}
		})
	}
}

func TestDecodedIntegersAndFloats(t *testing.T) {
	body := `{"molecule": {"atoms": [{"symbol": "H", "position": [0, 0, 0]}, {"symbol": "H", "position": [0, 0, 0.74]}],
		"charge": 0.0, "spin_multiplicity": 1}, "config": {"functional": "b3lyp", "basis_set": "sto-3g"}}`
	_, err := ParseEnergyRequest(decode(t, body))
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindFieldType || apiErr.Param != "molecule.charge" {
		t.Fatalf("charge 0.0 should be a field type error, got %v", err)
	}

	body = strings.Replace(body, `"charge": 0.0`, `"charge": 0`, 1)
	req, err := ParseEnergyRequest(decode(t, body))
	if err != nil {
		t.Fatalf("ParseEnergyRequest: %v", err)
	}
	if req.Molecule.String() != "H 0 0 0; H 0 0 0.74" {
		t.Errorf("molecule = %q", req.Molecule.String())
	}
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestEnergyRequestRoundTrip(t *testing.T) {
	req, err := ParseEnergyRequest(energyPayload())
	if err != nil {
		t.Fatalf("ParseEnergyRequest: %v", err)
	}

	fromMap, err := ParseEnergyRequest(req.ToMap())
	if err != nil {
		t.Fatalf("ParseEnergyRequest(ToMap): %v", err)
	}
	if !fromMap.Equal(req) {
		t.Error("map round trip changed the request")
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fromJSON EnergyRequest
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !fromJSON.Equal(req) {
		t.Errorf("JSON round trip changed the request: %s", data)
	}
}

func TestOptimizationRequestRoundTrip(t *testing.T) {
	p := optimizationPayload()
	p["conv_params"] = map[string]any{"convergence_drms": 2e-3}
	req, err := ParseOptimizationRequest(p)
	if err != nil {
		t.Fatalf("ParseOptimizationRequest: %v", err)
	}

	fromMap, err := ParseOptimizationRequest(req.ToMap())
	if err != nil {
		t.Fatalf("ParseOptimizationRequest(ToMap): %v", err)
	}
	if !fromMap.Equal(req) {
		t.Error("map round trip changed the request")
	}

	data, err := json.Marshal(NewOptimizationCalculation(req))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var calc CalculationRequest
	if err := json.Unmarshal(data, &calc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if calc.Kind != CalculationOptimization || !calc.Optimization.Equal(req) {
		t.Errorf("calculation round trip mismatch: %s", data)
	}
}

func TestParseCalculationRequestUnknownKind(t *testing.T) {
	_, err := ParseCalculationRequest("frequencies", energyPayload())
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindUnsupportedValue {
		t.Fatalf("want unsupported value error, got %v", err)
	}
}
