package provider

import (
	"context"
)

// Provider abstracts an electronic-structure engine. The interface is
// protocol-agnostic: each adapter handles its own transport (HTTP service,
// local subprocess) internally.
//
// Adapters classify failures as *api.APIError: input the engine refuses
// (unknown basis or functional, SCF not converging) is ErrorTypeEngineError,
// anything else is ErrorTypeServerError.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "remote", "pyscf").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// SinglePoint runs a self-consistent field calculation at a fixed geometry.
	SinglePoint(ctx context.Context, req *Request) (*Output, error)

	// Optimize relaxes the geometry and returns the final structure together
	// with the SCF result at that structure.
	Optimize(ctx context.Context, req *Request) (*Output, error)

	// Close releases provider resources (HTTP clients, temp files).
	Close() error
}
