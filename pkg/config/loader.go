package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CLOUDCOMPCHEM_CONFIG env, ./config.yaml, /etc/cloudcompchem/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CLOUDCOMPCHEM_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/cloudcompchem/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("CLOUDCOMPCHEM_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/cloudcompchem/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so typos do not go unnoticed.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps environment variables to config fields. Malformed
// numeric or duration values are reported instead of silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	integer("CLOUDCOMPCHEM_PORT", &cfg.Server.Port)

	str("CLOUDCOMPCHEM_ENGINE_TYPE", &cfg.Engine.Type)
	str("CLOUDCOMPCHEM_ENGINE_URL", &cfg.Engine.URL)
	str("CLOUDCOMPCHEM_ENGINE_API_KEY", &cfg.Engine.APIKey)
	duration("CLOUDCOMPCHEM_ENGINE_TIMEOUT", &cfg.Engine.Timeout)
	str("CLOUDCOMPCHEM_PYSCF_SCRIPT", &cfg.Engine.PySCF.Script)

	str("CLOUDCOMPCHEM_STORAGE", &cfg.Storage.Type)
	integer("CLOUDCOMPCHEM_STORAGE_SIZE", &cfg.Storage.MaxSize)
	str("CLOUDCOMPCHEM_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)

	str("CLOUDCOMPCHEM_AUTH_TYPE", &cfg.Auth.Type)
	str("CLOUDCOMPCHEM_JWKS_URL", &cfg.Auth.JWT.JWKSURL)
	str("CLOUDCOMPCHEM_IDENTITY_URL", &cfg.Auth.Identity.URL)

	str("CLOUDCOMPCHEM_JOBS_BACKEND", &cfg.Jobs.Backend)
	integer("CLOUDCOMPCHEM_JOBS_WORKERS", &cfg.Jobs.Workers)
	str("CLOUDCOMPCHEM_TEMPORAL_HOST", &cfg.Jobs.Temporal.HostPort)
	str("CLOUDCOMPCHEM_TEMPORAL_NAMESPACE", &cfg.Jobs.Temporal.Namespace)
	str("CLOUDCOMPCHEM_TEMPORAL_TASK_QUEUE", &cfg.Jobs.Temporal.TaskQueue)

	// LOG_LEVEL is the historical name; the prefixed one wins.
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("CLOUDCOMPCHEM_LOG_LEVEL", &cfg.Logging.Level)
	str("CLOUDCOMPCHEM_LOG_FORMAT", &cfg.Logging.Format)
	str("CLOUDCOMPCHEM_DEBUG", &cfg.Logging.Debug)

	// CLOUDCOMPCHEM_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("CLOUDCOMPCHEM_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			errs = append(errs, "CLOUDCOMPCHEM_API_KEYS: "+err.Error())
		} else if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// engine.api_key_file -> engine.api_key
	if cfg.Engine.APIKeyFile != "" && cfg.Engine.APIKey == "" {
		val, err := readSecretFile(cfg.Engine.APIKeyFile)
		if err != nil {
			return fmt.Errorf("engine.api_key_file: %w", err)
		}
		cfg.Engine.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
