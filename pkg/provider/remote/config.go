package remote

import "time"

// Config holds configuration for the remote engine adapter.
type Config struct {
	// BaseURL is the engine service URL (e.g., "http://localhost:8000").
	BaseURL string

	// APIKey for engine authentication (optional).
	APIKey string

	// Timeout for individual HTTP requests. Geometry optimizations can run
	// for a long time; defaults to 10 minutes.
	Timeout time.Duration

	// MaxRetries for transient failures (network errors, 502/503/504).
	// Defaults to 0 (no retries).
	MaxRetries int

	// RetryBackoff is the delay before the first retry; it doubles for each
	// further attempt. Defaults to 1s.
	RetryBackoff time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      10 * time.Minute,
		RetryBackoff: time.Second,
	}
}
