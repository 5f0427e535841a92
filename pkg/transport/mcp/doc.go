// Package mcp exposes the calculations as Model Context Protocol tools.
//
// Two tools are registered: single_point_energy and optimize_geometry. Both
// accept the same JSON object as the HTTP endpoints and return the result
// object as structured content. Validation and engine failures are
// reported as tool errors carrying the API error body, so an agent can
// correct its input; they never fail the protocol call itself.
package mcp
