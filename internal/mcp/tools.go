package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

const (
	toolScenarioList     = "scenario_list"
	toolScenarioDescribe = "scenario_describe"
	toolScenarioRun      = "scenario_run"
)

var matrixProperties = map[string]any{
	"roles": map[string]any{
		"type":        "array",
		"description": "Roles to run as (guest, client, master, admin). Defaults to the scenario's own matrix.",
		"items":       map[string]any{"type": "string", "enum": []string{"guest", "client", "master", "admin"}},
	},
	"locales": map[string]any{
		"type":        "array",
		"description": "Locales to run in, e.g. uk, en, ru. Defaults to the scenario's own matrix.",
		"items":       map[string]any{"type": "string"},
	},
	"viewports": map[string]any{
		"type":        "array",
		"description": "Named viewports: desktop, laptop, tablet, mobile. Defaults to the scenario's own matrix.",
		"items":       map[string]any{"type": "string", "enum": []string{"desktop", "laptop", "tablet", "mobile"}},
	},
}

// ToolDefinitions returns the scenario tool definitions.
func ToolDefinitions() []*mcp.Tool {
	runProps := map[string]any{
		"id": map[string]any{
			"type":        "string",
			"description": "Built-in scenario id from scenario_list. Mutually exclusive with document.",
		},
		"document": map[string]any{
			"type":        "string",
			"description": "A YAML scenario document to run instead of a built-in scenario.",
		},
	}
	for k, v := range matrixProperties {
		runProps[k] = v
	}

	return []*mcp.Tool{
		{
			Name:        toolScenarioList,
			Description: "List the built-in verification scenarios with their id, description, actor role, step count and default matrix. Use scenario_describe to read the steps of one scenario and scenario_run to execute it.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        toolScenarioDescribe,
			Description: "Describe one scenario: its metadata, the matrix cells it would run, and every step rendered for the given locale (selectors and typed text are localized). Read this before scenario_run to know which screenshots a run produces.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The scenario id from scenario_list",
					},
					"locale": map[string]any{
						"type":        "string",
						"description": "Locale to render steps in (default: the scenario's own locale)",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        toolScenarioRun,
			Description: "Run a scenario in a real browser across a role × locale × viewport matrix and return the summary: per-cell status, screenshot locations and, for failed cells, the error code, failing step, selector, last URL and last evaluated value. Runs block until every cell finished.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": runProps,
			},
		},
	}
}
