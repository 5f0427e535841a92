package engine

import "time"

// Config holds configuration for the calculation engine.
type Config struct {
	// Timeout bounds a single provider call. Zero means no limit beyond
	// the caller's context.
	Timeout time.Duration

	// RequireConvergence turns a result with converged=false into an
	// engine error instead of returning it to the client.
	RequireConvergence bool
}
