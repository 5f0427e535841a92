// Package config provides unified configuration for the cloudcompchem
// server, worker and command-line tools.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CLOUDCOMPCHEM_ prefix, plus LOG_LEVEL)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for cloudcompchem.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Jobs          JobsConfig          `yaml:"jobs"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`                // default: 5000
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"` // default: 10s
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`    // default: 90s
	MaxBodySize       int64         `yaml:"max_body_size"`       // bytes, default: 1 MiB
}

// EngineConfig selects and configures the electronic-structure engine.
type EngineConfig struct {
	Type               string        `yaml:"type"`                // "remote" or "pyscf", default: "pyscf"
	URL                string        `yaml:"url"`                 // remote engine base URL
	APIKey             string        `yaml:"api_key"`             // optional
	APIKeyFile         string        `yaml:"api_key_file"`        // _file variant for api_key
	Timeout            time.Duration `yaml:"timeout"`             // per calculation, default: 30m
	MaxRetries         int           `yaml:"max_retries"`         // remote only, default: 0
	RequireConvergence bool          `yaml:"require_convergence"` // default: false
	PySCF              PySCFConfig   `yaml:"pyscf"`
}

// PySCFConfig configures the subprocess engine.
type PySCFConfig struct {
	Command []string `yaml:"command"` // default: ["python3"]
	Script  string   `yaml:"script"`  // empty runs the embedded driver
	WorkDir string   `yaml:"workdir"`
	Env     []string `yaml:"env"` // extra KEY=VALUE pairs, e.g. OMP_NUM_THREADS=4
}

// StorageConfig holds job storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	DSNFile        string        `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32         `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool          `yaml:"migrate_on_start"` // default: false
	Retention      time.Duration `yaml:"retention"`        // finished jobs older than this are purged; 0 keeps them
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type            string          `yaml:"type"`             // "none", "apikey", "jwt" or "identity", default: "none"
	APIKeys         []APIKeyConfig  `yaml:"api_keys"`         // entries for type=apikey
	JWT             JWTConfig       `yaml:"jwt"`              // settings for type=jwt
	Identity        IdentityConfig  `yaml:"identity"`         // settings for type=identity
	BypassEndpoints []string        `yaml:"bypass_endpoints"` // default: health and metrics endpoints
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig configures bearer JWT validation against a JWKS endpoint.
type JWTConfig struct {
	JWKSURL     string        `yaml:"jwks_url"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	TenantClaim string        `yaml:"tenant_claim"`
	TierClaim   string        `yaml:"tier_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// IdentityConfig configures token checks against an identity service.
type IdentityConfig struct {
	URL         string        `yaml:"url"` // e.g. https://id.example.com/me
	TenantField string        `yaml:"tenant_field"`
	TierField   string        `yaml:"tier_field"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig holds per-tier request limits. Zero disables limiting.
type RateLimitConfig struct {
	DefaultRPM int                   `yaml:"default_rpm"`
	Tiers      map[string]TierConfig `yaml:"tiers"`
}

// TierConfig is the limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// JobsConfig selects the asynchronous job backend.
type JobsConfig struct {
	Backend   string         `yaml:"backend"`    // "none", "local" or "temporal", default: "local"
	Workers   int            `yaml:"workers"`    // local, default: 2
	QueueSize int            `yaml:"queue_size"` // local, default: 100
	Temporal  TemporalConfig `yaml:"temporal"`
}

// TemporalConfig holds the Temporal connection settings.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`  // default: localhost:7233
	Namespace string `yaml:"namespace"`  // default: "default"
	TaskQueue string `yaml:"task_queue"` // default: "cloudcompchem-calculations"
}

// MCPConfig holds the MCP tool endpoint settings.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Path    string `yaml:"path"`    // default: "/mcp"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // ERROR, WARN, INFO, DEBUG or TRACE; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              5000,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   90 * time.Second,
			MaxBodySize:       1 << 20,
		},
		Engine: EngineConfig{
			Type:    "pyscf",
			Timeout: 30 * time.Minute,
			PySCF: PySCFConfig{
				Command: []string{"python3"},
			},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Jobs: JobsConfig{
			Backend:   "local",
			Workers:   2,
			QueueSize: 100,
			Temporal: TemporalConfig{
				HostPort:  "localhost:7233",
				Namespace: "default",
				TaskQueue: "cloudcompchem-calculations",
			},
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
