package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider"
)

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	caps    provider.Capabilities
	output  *provider.Output
	err     error
	delay   time.Duration
	lastReq *provider.Request
	calls   []string
}

func (m *mockProvider) Name() string                         { return "mock" }
func (m *mockProvider) Capabilities() provider.Capabilities { return m.caps }
func (m *mockProvider) Close() error                         { return nil }

func (m *mockProvider) SinglePoint(ctx context.Context, req *provider.Request) (*provider.Output, error) {
	return m.run(ctx, "singlepoint", req)
}

func (m *mockProvider) Optimize(ctx context.Context, req *provider.Request) (*provider.Output, error) {
	return m.run(ctx, "optimize", req)
}

func (m *mockProvider) run(ctx context.Context, call string, req *provider.Request) (*provider.Output, error) {
	m.calls = append(m.calls, call)
	m.lastReq = req
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, api.NewServerError("engine call aborted: " + ctx.Err().Error())
		case <-time.After(m.delay):
		}
	}
	return m.output, m.err
}

func waterMolecule() map[string]any {
	return map[string]any{
		"atoms": []any{
			map[string]any{"symbol": "O", "position": []any{0.0, 0.0, 0.0}},
			map[string]any{"symbol": "H", "position": []any{0.0, 1.0, 0.0}},
			map[string]any{"symbol": "H", "position": []any{0.0, 0.0, 1.0}},
		},
		"charge":            0,
		"spin_multiplicity": 1,
	}
}

func energyCalculation(t *testing.T) *api.CalculationRequest {
	t.Helper()
	req, err := api.ParseCalculationRequest(api.CalculationEnergy, map[string]any{
		"molecule": waterMolecule(),
		"config":   map[string]any{"functional": "b3lyp", "basis_set": "sto-3g"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return req
}

func optimizationCalculation(t *testing.T, solver string) *api.CalculationRequest {
	t.Helper()
	req, err := api.ParseCalculationRequest(api.CalculationOptimization, map[string]any{
		"molecule":    waterMolecule(),
		"config":      map[string]any{"functional": "b3lyp", "basis_set": "sto-3g"},
		"solver":      solver,
		"conv_params": map[string]any{},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return req
}

func waterOutput() *provider.Output {
	return &provider.Output{
		Energy:    -75.3123,
		Converged: true,
		MOEnergy:  []float64{-18.9, -0.98, -0.45, -0.31, -0.23, 0.38, 0.52},
		MOOcc:     []float64{2, 2, 2, 2, 2, 0, 0},
	}
}

func newEngine(t *testing.T, mp *mockProvider, cfg Config) *Engine {
	t.Helper()
	eng, err := New(mp, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestNew_NilProvider(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestEngine_CalculateEnergy(t *testing.T) {
	mp := &mockProvider{caps: provider.Capabilities{Optimization: true}, output: waterOutput()}
	eng := newEngine(t, mp, Config{})

	res, err := eng.Calculate(context.Background(), energyCalculation(t))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.Kind != api.CalculationEnergy || res.Energy == nil || res.Relaxation != nil {
		t.Fatalf("unexpected result shape %+v", res)
	}
	if res.Energy.Energy != -75.3123 || !res.Energy.Converged {
		t.Errorf("unexpected energy result %+v", res.Energy)
	}
	if len(res.Energy.Orbitals) != 7 || res.Energy.Orbitals[5] != (api.Orbital{Energy: 0.38, Occupancy: 0}) {
		t.Errorf("orbitals not zipped in order: %+v", res.Energy.Orbitals)
	}

	// The engine request carries the canonical rendering and 2S.
	if mp.lastReq.Atom != "O 0 0 0; H 0 1 0; H 0 0 1" {
		t.Errorf("atom = %q", mp.lastReq.Atom)
	}
	if mp.lastReq.Spin != 0 || mp.lastReq.Unrestricted {
		t.Errorf("closed shell should be restricted with spin 0, got %+v", mp.lastReq)
	}
	if mp.lastReq.XC != "b3lyp" || mp.lastReq.Basis != "sto-3g" {
		t.Errorf("method not forwarded: %+v", mp.lastReq)
	}
	if strings.Join(mp.calls, ",") != "singlepoint" {
		t.Errorf("calls = %v", mp.calls)
	}
}

func TestEngine_OpenShellIsUnrestricted(t *testing.T) {
	mp := &mockProvider{output: waterOutput()}
	eng := newEngine(t, mp, Config{})

	mol := waterMolecule()
	mol["charge"] = 1
	mol["spin_multiplicity"] = 2
	req, err := api.ParseEnergyRequest(map[string]any{
		"molecule": mol,
		"config":   map[string]any{"functional": "b3lyp", "basis_set": "sto-3g"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if _, err := eng.CalculateEnergy(context.Background(), req); err != nil {
		t.Fatalf("CalculateEnergy: %v", err)
	}
	if mp.lastReq.Spin != 1 || !mp.lastReq.Unrestricted || mp.lastReq.Charge != 1 {
		t.Errorf("unexpected engine request %+v", mp.lastReq)
	}
}

func TestEngine_OptimizeGeometry(t *testing.T) {
	out := waterOutput()
	out.Symbols = []string{"O", "H", "H"}
	out.Positions = [][3]float64{
		{0, -0.07354282123, 0.07354282123},
		{0, 0.76598530001, -0.01884389999},
		{0, -0.01884389999, 0.76598530001},
	}
	mp := &mockProvider{caps: provider.Capabilities{Optimization: true}, output: out}
	eng := newEngine(t, mp, Config{})

	req := optimizationCalculation(t, "geomeTRIC")
	req.Optimization = &api.OptimizationRequest{
		Molecule:     req.Optimization.Molecule,
		Config:       req.Optimization.Config,
		SolverConfig: mustSolverConfig(t, api.SolverGeomeTRIC, map[string]float64{"convergence_energy": 1e-5}),
	}

	res, err := eng.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.Relaxation == nil {
		t.Fatal("expected relaxation result")
	}
	want := "O 0 -0.0735428 0.0735428; H 0 0.7659853 -0.0188439; H 0 -0.0188439 0.7659853"
	if got := res.Relaxation.Molecule.String(); got != want {
		t.Errorf("optimized molecule = %q, want %q", got, want)
	}
	if res.Relaxation.Molecule.Charge() != 0 || res.Relaxation.Molecule.SpinMultiplicity() != 1 {
		t.Error("optimized molecule must keep charge and multiplicity")
	}

	if mp.lastReq.Solver != "geomeTRIC" {
		t.Errorf("solver = %q", mp.lastReq.Solver)
	}
	params := mp.lastReq.ConvParams
	if len(params) != 5 || params["convergence_energy"] != 1e-5 || params["convergence_grms"] != 3e-4 {
		t.Errorf("expected merged geomeTRIC parameters, got %v", params)
	}
	if strings.Join(mp.calls, ",") != "optimize" {
		t.Errorf("calls = %v", mp.calls)
	}
}

func mustSolverConfig(t *testing.T, s api.Solver, overrides map[string]float64) api.SolverConfig {
	t.Helper()
	cfg, err := api.NewSolverConfig(s, overrides)
	if err != nil {
		t.Fatalf("NewSolverConfig: %v", err)
	}
	return cfg
}

func TestEngine_CapabilityChecks(t *testing.T) {
	tests := []struct {
		name      string
		caps      provider.Capabilities
		solver    string
		wantParam string
	}{
		{"no optimization", provider.Capabilities{}, "geomeTRIC", ""},
		{"solver not offered", provider.Capabilities{Optimization: true, Solvers: []api.Solver{api.SolverGeomeTRIC}}, "berny", "solver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := &mockProvider{caps: tt.caps, output: waterOutput()}
			eng := newEngine(t, mp, Config{})

			_, err := eng.Calculate(context.Background(), optimizationCalculation(t, tt.solver))
			apiErr, ok := api.AsAPIError(err)
			if !ok {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Kind != api.KindUnsupportedValue || apiErr.Param != tt.wantParam {
				t.Errorf("unexpected error %+v", apiErr)
			}
			if len(mp.calls) != 0 {
				t.Error("provider must not be called for unsupported requests")
			}
		})
	}
}

func TestEngine_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		output   *provider.Output
		err      error
		wantType api.ErrorType
		wantMsg  string
	}{
		{
			name:     "engine rejects input",
			err:      api.NewEngineError("Basis not found for atom O", nil),
			wantType: api.ErrorTypeEngineError,
			wantMsg:  "Basis not found for atom O",
		},
		{
			name:     "plain provider error",
			err:      errors.New("socket closed"),
			wantType: api.ErrorTypeServerError,
			wantMsg:  "internal error",
		},
		{
			name:     "orbital arrays differ",
			output:   &provider.Output{Energy: -1, MOEnergy: []float64{-1, 0}, MOOcc: []float64{2}},
			wantType: api.ErrorTypeServerError,
			wantMsg:  "internal error",
		},
		{
			name:     "no output",
			wantType: api.ErrorTypeServerError,
			wantMsg:  "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := &mockProvider{output: tt.output, err: tt.err}
			eng := newEngine(t, mp, Config{})

			res, err := eng.Calculate(context.Background(), energyCalculation(t))
			if res != nil {
				t.Error("expected nil result")
			}
			apiErr, ok := api.AsAPIError(err)
			if !ok {
				t.Fatalf("expected APIError, got %T %v", err, err)
			}
			if apiErr.Type != tt.wantType || apiErr.Message != tt.wantMsg {
				t.Errorf("got %s %q, want %s %q", apiErr.Type, apiErr.Message, tt.wantType, tt.wantMsg)
			}
		})
	}
}

func TestEngine_InconsistentGeometry(t *testing.T) {
	tests := []struct {
		name      string
		symbols   []string
		positions [][3]float64
	}{
		{"symbol count mismatch", []string{"O", "H"}, [][3]float64{{0, 0, 0}, {0, 1, 0}, {0, 0, 1}}},
		{"atom count changed", []string{"O", "H"}, [][3]float64{{0, 0, 0}, {0, 1, 0}}},
		{"unknown element", []string{"O", "H", "Xx"}, [][3]float64{{0, 0, 0}, {0, 1, 0}, {0, 0, 1}}},
		{"not a number", []string{"O", "H", "H"}, [][3]float64{{0, 0, 0}, {0, 1, 0}, {0, 0, math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := waterOutput()
			out.Symbols = tt.symbols
			out.Positions = tt.positions
			eng := newEngine(t, &mockProvider{caps: provider.Capabilities{Optimization: true}, output: out}, Config{})

			_, err := eng.Calculate(context.Background(), optimizationCalculation(t, "geomeTRIC"))
			if !errors.Is(err, api.ErrInconsistentOutput) {
				t.Errorf("expected ErrInconsistentOutput in chain, got %v", err)
			}
			apiErr, _ := api.AsAPIError(err)
			if apiErr == nil || apiErr.Message != "internal error" {
				t.Errorf("client should see a generic message, got %v", err)
			}
		})
	}
}

func TestEngine_RequireConvergence(t *testing.T) {
	out := waterOutput()
	out.Converged = false

	lenient := newEngine(t, &mockProvider{output: out}, Config{})
	res, err := lenient.Calculate(context.Background(), energyCalculation(t))
	if err != nil {
		t.Fatalf("unconverged result should be returned by default: %v", err)
	}
	if res.Energy.Converged {
		t.Error("converged flag must be passed through")
	}

	strict := newEngine(t, &mockProvider{output: out}, Config{RequireConvergence: true})
	_, err = strict.Calculate(context.Background(), energyCalculation(t))
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeEngineError {
		t.Errorf("expected engine error, got %v", err)
	}
}

func TestEngine_Timeout(t *testing.T) {
	mp := &mockProvider{output: waterOutput(), delay: time.Second}
	eng := newEngine(t, mp, Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := eng.Calculate(context.Background(), energyCalculation(t))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("provider call was not cancelled")
	}
}
