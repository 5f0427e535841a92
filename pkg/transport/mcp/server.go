package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// Tool names.
const (
	ToolSinglePointEnergy = "single_point_energy"
	ToolOptimizeGeometry  = "optimize_geometry"
)

// Version is reported in the MCP handshake.
var Version = "dev"

// NewServer builds an MCP server whose tools run calculations with calc.
// Middleware is applied to calc in the given order.
func NewServer(calc transport.Calculator, middlewares ...transport.Middleware) *mcp.Server {
	if len(middlewares) > 0 {
		calc = transport.Chain(middlewares...)(calc)
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "cloudcompchem", Version: Version}, nil)

	server.AddTool(&mcp.Tool{
		Name:        ToolSinglePointEnergy,
		Description: "Computes the single-point DFT energy of a molecule. Returns the total energy in hartree, whether the SCF converged, and the molecular orbitals (energy, occupancy).",
		InputSchema: energySchema(),
	}, toolHandler(calc, api.CalculationEnergy))

	server.AddTool(&mcp.Tool{
		Name:        ToolOptimizeGeometry,
		Description: "Relaxes the geometry of a molecule with DFT. Returns the optimized molecule (coordinates in angstrom), its energy, convergence and orbitals.",
		InputSchema: optimizationSchema(),
	}, toolHandler(calc, api.CalculationOptimization))

	return server
}

// Handler serves server over streamable HTTP, for mounting at e.g. /mcp.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func toolHandler(calc transport.Calculator, kind api.CalculationKind) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 {
			args = []byte("{}")
		}
		payload, err := api.DecodeObject(bytes.NewReader(args))
		if err != nil {
			return errorResult(err), nil
		}
		calcReq, err := api.ParseCalculationRequest(kind, payload)
		if err != nil {
			debug.Log("mcp", "tool input rejected", "tool", req.Params.Name, "error", err)
			return errorResult(err), nil
		}

		res, err := calc.Calculate(ctx, calcReq)
		if err != nil {
			return errorResult(err), nil
		}

		out, err := json.Marshal(res.Payload())
		if err != nil {
			return errorResult(api.NewInternalError(err)), nil
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(out)}},
			StructuredContent: json.RawMessage(out),
		}, nil
	}
}

// errorResult renders err as the same error body the HTTP API returns.
func errorResult(err error) *mcp.CallToolResult {
	body, _ := json.Marshal(api.ErrorResponse{Error: transport.ToAPIError(err)})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}
}
