package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const verifyWorkflowPromptName = "verify_workflow"

func registerPrompts(mcpServer *mcp.Server) {
	for _, prompt := range PromptDefinitions() {
		mcpServer.AddPrompt(prompt, promptHandler())
	}
}

// PromptDefinitions returns the MCP prompt definitions.
func PromptDefinitions() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        verifyWorkflowPromptName,
			Title:       "Verify a user flow",
			Description: promptDescription,
		},
	}
}

const promptDescription = "How to pick, inspect and run a verification scenario and read its result."

const promptText = "Call scenario_list to find the scenario covering the flow. Call scenario_describe with its id to see the steps and the matrix cells it runs. " +
	"Call scenario_run with the id, optionally narrowing roles, locales or viewports. " +
	"A cell with status failed carries failure.code: assertion means the page rendered but the expected state never appeared; " +
	"element_not_found, ambiguous_element, navigation, timeout and injection point at the scenario or the environment. " +
	"Every failed cell has exactly one error.png screenshot; passed cells list their checkpoint screenshots."

func promptHandler() mcp.PromptHandler {
	return func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: promptDescription,
			Messages: []*mcp.PromptMessage{
				{
					Role:    mcp.Role("user"),
					Content: &mcp.TextContent{Text: promptText},
				},
			},
		}, nil
	}
}
