package mcp

import "github.com/cloudcompchem/cloudcompchem/pkg/api"

func moleculeSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"atoms", "charge", "spin_multiplicity"},
		"properties": map[string]any{
			"atoms": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []string{"symbol", "position"},
					"properties": map[string]any{
						"symbol": map[string]any{"type": "string", "description": "Element symbol, e.g. O"},
						"position": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "number"},
							"minItems":    3,
							"maxItems":    3,
							"description": "Cartesian coordinates in angstrom",
						},
					},
					"additionalProperties": false,
				},
			},
			"charge":            map[string]any{"type": "integer"},
			"spin_multiplicity": map[string]any{"type": "integer", "minimum": 1, "description": "2S+1"},
		},
		"additionalProperties": false,
	}
}

func configSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"functional", "basis_set"},
		"properties": map[string]any{
			"functional": map[string]any{"type": "string", "description": "Exchange-correlation functional, e.g. b3lyp"},
			"basis_set":  map[string]any{"type": "string", "description": "Basis set, e.g. sto-3g"},
		},
		"additionalProperties": false,
	}
}

func energySchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"molecule", "config"},
		"properties": map[string]any{
			"molecule": moleculeSchema(),
			"config":   configSchema(),
		},
		"additionalProperties": false,
	}
}

func optimizationSchema() map[string]any {
	s := energySchema()
	s["required"] = []string{"molecule", "config", "solver"}
	props := s["properties"].(map[string]any)
	props["solver"] = map[string]any{
		"type": "string",
		"enum": []string{string(api.SolverGeomeTRIC), string(api.SolverBerny)},
	}
	props["conv_params"] = map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": "number"},
		"description":          "Overrides of the solver's convergence thresholds",
	}
	return s
}
