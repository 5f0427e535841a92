package pyscf

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider"
)

//go:embed driver.py
var driverSource string

const (
	modeSinglePoint = "singlepoint"
	modeOptimize    = "optimize"

	// exitInput is the driver exit status for input PySCF refused.
	exitInput = 2

	maxStderr = 2048

	// waitDelay bounds how long a killed driver's children may hold the
	// output pipes open.
	waitDelay = 5 * time.Second
)

// Provider implements provider.Provider by running PySCF in a subprocess.
type Provider struct {
	cfg Config
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. The interpreter must be on PATH.
func New(cfg Config) (*Provider, error) {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"python3"}
	}
	if _, err := exec.LookPath(cfg.Command[0]); err != nil {
		return nil, fmt.Errorf("pyscf: interpreter %q not found: %w", cfg.Command[0], err)
	}
	if cfg.Script != "" {
		if _, err := os.Stat(cfg.Script); err != nil {
			return nil, fmt.Errorf("pyscf: driver script: %w", err)
		}
	}
	return &Provider{cfg: cfg}, nil
}

func (p *Provider) Name() string { return "pyscf" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Optimization: true}
}

func (p *Provider) SinglePoint(ctx context.Context, req *provider.Request) (*provider.Output, error) {
	return p.run(ctx, modeSinglePoint, req)
}

func (p *Provider) Optimize(ctx context.Context, req *provider.Request) (*provider.Output, error) {
	return p.run(ctx, modeOptimize, req)
}

func (p *Provider) Close() error { return nil }

// args builds the subprocess argument list for one run.
func (p *Provider) args(mode string) []string {
	args := append([]string{}, p.cfg.Command[1:]...)
	if p.cfg.Script != "" {
		return append(args, p.cfg.Script, mode)
	}
	return append(args, "-c", driverSource, mode)
}

func (p *Provider) run(ctx context.Context, mode string, req *provider.Request) (*provider.Output, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal engine request: %s", err.Error()))
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	workDir := p.cfg.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "cloudcompchem-pyscf-*")
		if err != nil {
			return nil, api.NewServerError(fmt.Sprintf("failed to create work directory: %s", err.Error()))
		}
		defer os.RemoveAll(tmp)
		workDir = tmp
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command[0], p.args(mode)...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	debug.Log("providers", "starting pyscf driver", slog.String("mode", mode), slog.String("dir", workDir))
	debug.Trace("providers", "pyscf request", slog.String("body", string(input)))

	runErr := cmd.Run()

	if ctx.Err() != nil {
		return nil, api.NewServerError(fmt.Sprintf("pyscf %s run aborted: %s", mode, ctx.Err().Error()))
	}
	if runErr != nil {
		return nil, mapRunError(mode, runErr, stdout.Bytes(), stderr.String())
	}

	var out provider.Output
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse pyscf output: %s", err.Error()))
	}
	debug.Trace("providers", "pyscf response", slog.String("body", debug.Truncate(stdout.String(), 4096)))
	return &out, nil
}

// mapRunError classifies a failed driver run from its exit status and the
// error document it printed.
func mapRunError(mode string, runErr error, stdout []byte, stderr string) *api.APIError {
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return api.NewServerError(fmt.Sprintf("failed to start pyscf driver: %s", runErr.Error()))
	}

	var body provider.ErrorBody
	_ = json.Unmarshal(stdout, &body)

	if exitErr.ExitCode() == exitInput && body.Error.Kind == provider.ErrorKindInput {
		msg := body.Error.Message
		if msg == "" {
			msg = "the engine rejected the calculation input"
		}
		return api.NewEngineError(msg, runErr)
	}

	msg := body.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(debug.Truncate(stderr, maxStderr))
	}
	slog.Error("pyscf driver failed",
		slog.String("mode", mode), slog.Int("exit_code", exitErr.ExitCode()), slog.String("detail", msg))
	return api.NewServerError(fmt.Sprintf("pyscf %s run failed with exit status %d", mode, exitErr.ExitCode()))
}
