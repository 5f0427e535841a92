package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider"
)

const (
	singlePointPath = "/v1/singlepoint"
	optimizePath    = "/v1/optimize"
)

// Provider implements provider.Provider for an HTTP engine service.
type Provider struct {
	cfg    Config
	client *http.Client
	caps   provider.Capabilities
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// New creates a new Provider with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: BaseURL is required")
	}

	// Normalize: remove trailing slash from base URL.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		caps:   provider.Capabilities{Optimization: true},
	}, nil
}

// NewWithCapabilities creates a new Provider with custom capabilities.
func NewWithCapabilities(cfg Config, caps provider.Capabilities) (*Provider, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	p.caps = caps
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "remote"
}

// Capabilities returns what this provider supports.
func (p *Provider) Capabilities() provider.Capabilities {
	return p.caps
}

// SinglePoint posts the request to the engine's single-point endpoint.
func (p *Provider) SinglePoint(ctx context.Context, req *provider.Request) (*provider.Output, error) {
	return p.call(ctx, singlePointPath, req)
}

// Optimize posts the request to the engine's optimization endpoint.
func (p *Provider) Optimize(ctx context.Context, req *provider.Request) (*provider.Output, error) {
	return p.call(ctx, optimizePath, req)
}

// Close releases client resources.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) call(ctx context.Context, path string, req *provider.Request) (*provider.Output, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal engine request: %s", err.Error()))
	}

	backoff := p.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		out, retryable, err := p.do(ctx, path, body)
		if err == nil || !retryable || attempt >= p.cfg.MaxRetries {
			return out, err
		}
		debug.Log("providers", "retrying engine call",
			slog.String("path", path), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return nil, MapNetworkError(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// do performs one HTTP round trip. The boolean reports whether a failure is
// worth retrying.
func (p *Provider) do(ctx context.Context, path string, body []byte) (*provider.Output, bool, error) {
	url := p.cfg.BaseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	debug.Log("providers", "engine request", slog.String("url", url), slog.Int("bytes", len(body)))

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, ctx.Err() == nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, isTransientStatus(httpResp.StatusCode), MapHTTPError(httpResp)
	}

	var out provider.Output
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, false, api.NewServerError(fmt.Sprintf("failed to parse engine response: %s", err.Error()))
	}
	return &out, false, nil
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
