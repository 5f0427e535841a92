package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/auth"
	"github.com/cloudcompchem/cloudcompchem/pkg/config"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage/memory"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
	transporthttp "github.com/cloudcompchem/cloudcompchem/pkg/transport/http"
)

const waterEnergy = `{
  "molecule": {
    "atoms": [
      {"symbol": "O", "position": [0, 0, 0]},
      {"symbol": "H", "position": [0, 0.96, 0]},
      {"symbol": "H", "position": [0.93, -0.24, 0]}
    ],
    "charge": 0,
    "spin_multiplicity": 1
  },
  "config": {"functional": "b3lyp", "basis_set": "sto-3g"}
}`

const waterOptimize = `{
  "molecule": {
    "atoms": [
      {"symbol": "O", "position": [0, 0, 0]},
      {"symbol": "H", "position": [0, 0.96, 0]},
      {"symbol": "H", "position": [0.93, -0.24, 0]}
    ],
    "charge": 0,
    "spin_multiplicity": 1
  },
  "config": {"functional": "b3lyp", "basis_set": "sto-3g"},
  "solver": "geomeTRIC"
}`

func fakeCalculator() transport.Calculator {
	return transport.CalculatorFunc(func(_ context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
		moE := []float64{-20.2, -1.2, -0.4, 0.3}
		moOcc := []float64{2, 2, 0, 0}
		if req.Kind == api.CalculationEnergy {
			res, err := api.NewSinglePointEnergyResult(-75.31, true, moE, moOcc)
			if err != nil {
				return nil, err
			}
			return &api.CalculationResult{Kind: req.Kind, Energy: res}, nil
		}
		mol := req.Molecule()
		res, err := api.NewStructureRelaxationResult(mol, mol.Symbols(), mol.Positions(), -75.32, true, moE, moOcc)
		if err != nil {
			return nil, err
		}
		return &api.CalculationResult{Kind: req.Kind, Relaxation: res}, nil
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the CLI and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	app := newApp()
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"cloudcompchem"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestEnergyCommand_Remote(t *testing.T) {
	srv := httptest.NewServer(transporthttp.NewAdapter(fakeCalculator(), nil, transporthttp.Config{}).Handler())
	defer srv.Close()

	path := writeFile(t, "water.json", waterEnergy)
	stdout, stderr, err := run(t, "energy", "--url", srv.URL, path)
	if err != nil {
		t.Fatalf("energy: %v", err)
	}

	var res map[string]any
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if res["energy"] != -75.31 {
		t.Errorf("energy = %v, want -75.31", res["energy"])
	}
	if !strings.Contains(stderr, "Total energy:     -75.31000000 Eh") {
		t.Errorf("summary missing energy:\n%s", stderr)
	}
	if !strings.Contains(stderr, "HOMO-LUMO gap:    0.800000 Eh (21.769 eV)") {
		t.Errorf("summary missing gap:\n%s", stderr)
	}
}

func TestOptimizeCommand_Remote(t *testing.T) {
	srv := httptest.NewServer(transporthttp.NewAdapter(fakeCalculator(), nil, transporthttp.Config{}).Handler())
	defer srv.Close()

	path := writeFile(t, "water.json", waterOptimize)
	stdout, stderr, err := run(t, "optimize", "--url", srv.URL, path)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !strings.Contains(stdout, `"molecule"`) {
		t.Errorf("stdout missing molecule:\n%s", stdout)
	}
	for _, want := range []string{"RMSD from input:  0.0000 A", "Bonds (A):", "O1-H2 0.9600"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("summary missing %q:\n%s", want, stderr)
		}
	}
}

func TestCalculationCommand_Quiet(t *testing.T) {
	srv := httptest.NewServer(transporthttp.NewAdapter(fakeCalculator(), nil, transporthttp.Config{}).Handler())
	defer srv.Close()

	_, stderr, err := run(t, "energy", "-q", "--url", srv.URL, writeFile(t, "water.json", waterEnergy))
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	if stderr != "" {
		t.Errorf("quiet run wrote a summary:\n%s", stderr)
	}
}

func TestCalculationCommand_InvalidRequest(t *testing.T) {
	path := writeFile(t, "bad.json", `{"molecule": {"atoms": [], "charge": 0, "spin_multiplicity": 1}, "config": {}}`)
	_, _, err := run(t, "energy", "--url", "http://127.0.0.1:1", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr, ok := api.AsAPIError(err)
	if !ok || apiErr.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("err = %v, want invalid_request", err)
	}
}

func TestCalculationCommand_ServerError(t *testing.T) {
	failing := transport.CalculatorFunc(func(context.Context, *api.CalculationRequest) (*api.CalculationResult, error) {
		return nil, api.NewEngineError("SCF did not converge", nil)
	})
	srv := httptest.NewServer(transporthttp.NewAdapter(failing, nil, transporthttp.Config{}).Handler())
	defer srv.Close()

	_, _, err := run(t, "energy", "--url", srv.URL, writeFile(t, "water.json", waterEnergy))
	if err == nil || !strings.Contains(err.Error(), "SCF did not converge") {
		t.Errorf("err = %v, want engine error", err)
	}
}

func TestCalculationCommand_Args(t *testing.T) {
	if _, _, err := run(t, "energy", "--url", "http://x"); err == nil {
		t.Error("expected error without a request file")
	}
	if _, _, err := run(t, "energy", "--async", writeFile(t, "water.json", waterEnergy)); err == nil ||
		!strings.Contains(err.Error(), "--async requires --url") {
		t.Errorf("err = %v, want --async error", err)
	}
}

func TestConfigCheck(t *testing.T) {
	good := writeFile(t, "config.yaml", "server:\n  port: 6000\n")
	stdout, _, err := run(t, "--config", good, "config", "check")
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(stdout, "configuration OK") {
		t.Errorf("stdout = %q", stdout)
	}

	bad := writeFile(t, "config.yaml", "engine:\n  type: gaussian\n")
	if _, _, err := run(t, "--config", bad, "config", "check"); err == nil {
		t.Error("expected validation error")
	}
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	path := writeFile(t, "config.yaml", `
engine:
  type: remote
  url: http://engine:8000
  api_key: sk-secret
`)
	stdout, _, err := run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "sk-secret") {
		t.Errorf("secret leaked:\n%s", stdout)
	}
	if !strings.Contains(stdout, "REDACTED") || !strings.Contains(stdout, "http://engine:8000") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestNewAuth(t *testing.T) {
	chain, limiter, err := newAuth(config.Defaults().Auth)
	if err != nil || chain != nil || limiter != nil {
		t.Errorf("auth none: chain=%v limiter=%v err=%v, want all nil", chain, limiter, err)
	}

	cfg := config.Defaults().Auth
	cfg.RateLimit.DefaultRPM = 10
	chain, limiter, err = newAuth(cfg)
	if err != nil || chain == nil || limiter == nil {
		t.Fatalf("auth none with rate limit: chain=%v limiter=%v err=%v", chain, limiter, err)
	}
	r := httptest.NewRequest(http.MethodPost, "/v1/energy", nil)
	if got := chain.Authenticate(r.Context(), r); got.Decision != auth.Yes {
		t.Errorf("anonymous decision = %v, want Yes", got.Decision)
	}

	cfg = config.Defaults().Auth
	cfg.Type = "apikey"
	cfg.APIKeys = []config.APIKeyConfig{{Key: "sk-a", Subject: "alice", TenantID: "lab-1", ServiceTier: "premium"}}
	chain, _, err = newAuth(cfg)
	if err != nil {
		t.Fatal(err)
	}

	r = httptest.NewRequest(http.MethodPost, "/v1/energy", nil)
	if got := chain.Authenticate(r.Context(), r); got.Decision != auth.No {
		t.Errorf("anonymous decision = %v, want No", got.Decision)
	}
	r.Header.Set("Authorization", "Bearer sk-a")
	got := chain.Authenticate(r.Context(), r)
	if got.Decision != auth.Yes || got.Identity.Subject != "alice" || got.Identity.TenantID() != "lab-1" {
		t.Errorf("result = %+v, want alice of lab-1", got)
	}

	cfg = config.Defaults().Auth
	cfg.Type = "identity"
	if _, _, err := newAuth(cfg); err == nil {
		t.Error("identity without URL should fail")
	}
}

func TestServerOptions_MCPAndMetrics(t *testing.T) {
	cfg := config.Defaults()
	cfg.MCP.Enabled = true
	cfg.Observability.Metrics.Enabled = false

	opts, err := serverOptions(&cfg, fakeCalculator(), nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(transporthttp.NewServer(fakeCalculator(), nil, opts...).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404 when disabled", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		t.Error("/mcp should be mounted when enabled")
	}
}

func TestEnergyCommand_Async(t *testing.T) {
	queue := jobs.NewLocal(fakeCalculator(), memory.New(10), jobs.LocalConfig{Workers: 1})
	defer queue.Close()
	srv := httptest.NewServer(transporthttp.NewAdapter(fakeCalculator(), queue, transporthttp.Config{}).Handler())
	defer srv.Close()

	stdout, stderr, err := run(t, "energy", "--async", "--poll", "10ms", "--url", srv.URL, writeFile(t, "water.json", waterEnergy))
	if err != nil {
		t.Fatalf("energy --async: %v", err)
	}
	if !strings.Contains(stderr, "submitted job_") {
		t.Errorf("stderr missing job ID:\n%s", stderr)
	}
	if !strings.Contains(stdout, `"energy": -75.31`) {
		t.Errorf("stdout missing energy:\n%s", stdout)
	}
}
