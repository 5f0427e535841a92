// Package transport defines the calculation handler contract and the
// middleware chain shared by the HTTP and MCP front ends.
//
// # Handler Interface
//
// Calculator is the single contract between the front ends and the
// processing engine: it takes a validated api.CalculationRequest and returns
// an api.CalculationResult or an error. Failures are reported as
// *api.APIError; anything else is treated as an internal error.
//
// # Middleware
//
// Middleware wraps a Calculator with cross-cutting concerns. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID)
// and structured logging via log/slog.
//
// # Errors
//
// HTTPStatusFromError and WriteAPIError render an APIError on the wire:
// authentication failures become 401, validation and engine input
// rejections 400, and everything else 500.
package transport
