// Package client is the Go SDK for cloudcompchem. A Client either runs
// calculations in-process against an engine or sends them to a
// cloudcompchem server, with the same methods and error types in both
// modes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// ErrLocalMode is returned by job methods on an in-process client.
var ErrLocalMode = errors.New("jobs are only available against a server")

// Config configures a remote client.
type Config struct {
	// URL of the server, e.g. https://chem.example.com.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds each HTTP call (default 15m; calculations are slow).
	Timeout time.Duration

	HTTPClient *http.Client
}

// Client runs calculations locally or remotely.
type Client struct {
	local transport.Calculator

	baseURL string
	token   string
	http    *http.Client
}

var _ transport.Calculator = (*Client)(nil)

// New creates a client for a remote server.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("client: URL is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    hc,
	}, nil
}

// NewLocal creates a client that runs calculations in-process with calc.
func NewLocal(calc transport.Calculator) *Client {
	return &Client{local: calc}
}

// Local reports whether the client computes in-process.
func (c *Client) Local() bool { return c.local != nil }

// SinglePointEnergy computes the energy of req.Molecule.
func (c *Client) SinglePointEnergy(ctx context.Context, req *api.EnergyRequest) (*api.SinglePointEnergyResult, error) {
	res, err := c.Calculate(ctx, api.NewEnergyCalculation(req))
	if err != nil {
		return nil, err
	}
	return res.Energy, nil
}

// OptimizeGeometry relaxes req.Molecule.
func (c *Client) OptimizeGeometry(ctx context.Context, req *api.OptimizationRequest) (*api.StructureRelaxationResult, error) {
	res, err := c.Calculate(ctx, api.NewOptimizationCalculation(req))
	if err != nil {
		return nil, err
	}
	return res.Relaxation, nil
}

// Calculate runs a calculation of either kind.
func (c *Client) Calculate(ctx context.Context, req *api.CalculationRequest) (*api.CalculationResult, error) {
	if c.local != nil {
		return c.local.Calculate(ctx, req)
	}

	res := &api.CalculationResult{Kind: req.Kind}
	var err error
	switch req.Kind {
	case api.CalculationEnergy:
		res.Energy = &api.SinglePointEnergyResult{}
		err = c.do(ctx, http.MethodPost, "/v1/energy", req.Energy, http.StatusOK, res.Energy)
	case api.CalculationOptimization:
		res.Relaxation = &api.StructureRelaxationResult{}
		err = c.do(ctx, http.MethodPost, "/v1/optimize", req.Optimization, http.StatusOK, res.Relaxation)
	default:
		err = api.NewUnsupportedValueError("kind", fmt.Sprintf("unsupported calculation kind %q", req.Kind))
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Submit queues a calculation on the server and returns its job handle.
func (c *Client) Submit(ctx context.Context, req *api.CalculationRequest) (*jobs.Handle, error) {
	if c.local != nil {
		return nil, ErrLocalMode
	}
	var body any
	path := "/v1/jobs/energy"
	switch req.Kind {
	case api.CalculationEnergy:
		body = req.Energy
	case api.CalculationOptimization:
		body, path = req.Optimization, "/v1/jobs/optimize"
	default:
		return nil, api.NewUnsupportedValueError("kind", fmt.Sprintf("unsupported calculation kind %q", req.Kind))
	}
	var h jobs.Handle
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusAccepted, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Job fetches the current state of a job.
func (c *Client) Job(ctx context.Context, id string) (*jobs.Handle, error) {
	return c.jobCall(ctx, http.MethodGet, id)
}

// CancelJob stops a job that has not finished.
func (c *Client) CancelJob(ctx context.Context, id string) (*jobs.Handle, error) {
	return c.jobCall(ctx, http.MethodDelete, id)
}

// Wait polls a job every interval until it is ready or ctx ends.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*jobs.Handle, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		h, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if h.Ready {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) jobCall(ctx context.Context, method, id string) (*jobs.Handle, error) {
	if c.local != nil {
		return nil, ErrLocalMode
	}
	var h jobs.Handle
	if err := c.do(ctx, method, "/v1/jobs/"+id, nil, http.StatusOK, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// do sends one request and decodes a wantStatus response into out. Any
// other status is returned as the server's *api.APIError.
func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	debug.Log("transport", "client request", "method", method, "url", req.URL.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns an error response into an APIError. Bodies that are
// not API errors (proxies, load balancers) are kept as the message.
func decodeError(status int, data []byte) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != nil && body.Error.Type != "" {
		return body.Error
	}
	msg := fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(debug.Truncate(string(data), 512)))
	switch {
	case status == http.StatusUnauthorized:
		return api.NewUnauthenticatedError(msg)
	case status == http.StatusTooManyRequests:
		return api.NewTooManyRequestsError(msg)
	case status == http.StatusNotFound:
		return api.NewNotFoundError(msg)
	default:
		return api.NewServerError(msg)
	}
}
