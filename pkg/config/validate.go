package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Engine.Type {
	case "remote":
		if c.Engine.URL == "" {
			errs = append(errs, fmt.Errorf("engine.url is required when engine.type is \"remote\""))
		}
	case "pyscf":
		if len(c.Engine.PySCF.Command) == 0 {
			errs = append(errs, fmt.Errorf("engine.pyscf.command must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("engine.type must be \"remote\" or \"pyscf\", got %q", c.Engine.Type))
	}
	if c.Engine.Timeout < 0 {
		errs = append(errs, fmt.Errorf("engine.timeout must not be negative"))
	}
	if c.Engine.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("engine.max_retries must not be negative, got %d", c.Engine.MaxRetries))
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	case "identity":
		if c.Auth.Identity.URL == "" {
			errs = append(errs, fmt.Errorf("auth.identity.url is required when auth.type is \"identity\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", \"jwt\" or \"identity\", got %q", c.Auth.Type))
	}
	if c.Auth.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.default_rpm must not be negative"))
	}

	switch c.Jobs.Backend {
	case "none":
	case "local":
		if c.Jobs.Workers <= 0 {
			errs = append(errs, fmt.Errorf("jobs.workers must be > 0, got %d", c.Jobs.Workers))
		}
		if c.Jobs.QueueSize <= 0 {
			errs = append(errs, fmt.Errorf("jobs.queue_size must be > 0, got %d", c.Jobs.QueueSize))
		}
	case "temporal":
		if c.Jobs.Temporal.HostPort == "" || c.Jobs.Temporal.TaskQueue == "" {
			errs = append(errs, fmt.Errorf("jobs.temporal.host_port and jobs.temporal.task_queue are required when jobs.backend is \"temporal\""))
		}
	default:
		errs = append(errs, fmt.Errorf("jobs.backend must be \"none\", \"local\" or \"temporal\", got %q", c.Jobs.Backend))
	}

	if c.MCP.Enabled && (c.MCP.Path == "" || c.MCP.Path[0] != '/') {
		errs = append(errs, fmt.Errorf("mcp.path must start with \"/\", got %q", c.MCP.Path))
	}
	if c.Observability.Metrics.Enabled && (c.Observability.Metrics.Path == "" || c.Observability.Metrics.Path[0] != '/') {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	if !slices.Contains([]string{"", "text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// BypassEndpoints returns the endpoints that skip authentication: the
// configured list, or health checks and the metrics path by default.
func (c *Config) BypassEndpoints() []string {
	if len(c.Auth.BypassEndpoints) > 0 {
		return c.Auth.BypassEndpoints
	}
	out := []string{"/healthz", "/readyz", "/health-check"}
	if c.Observability.Metrics.Enabled {
		out = append(out, c.Observability.Metrics.Path)
	}
	return out
}
