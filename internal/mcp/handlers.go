package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/uiverify/internal/artifact"
	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/journeys"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/scenariofile"
)

// Runner executes scenarios and writes their reports.
type Runner interface {
	RunAll(ctx context.Context, scenarios []scenario.Scenario, m scenario.Matrix) ([]artifact.Summary, error)
}

// Handler implements MCP tool call handling.
type Handler struct {
	registry *journeys.Registry
	runner   Runner
	catalog  *identity.Catalog
}

// NewHandler creates a handler over the scenario registry. catalog resolves
// identities in YAML documents and defaults to identity.Builtin().
func NewHandler(registry *journeys.Registry, runner Runner, catalog *identity.Catalog) *Handler {
	if catalog == nil {
		catalog = identity.Builtin()
	}
	return &Handler{registry: registry, runner: runner, catalog: catalog}
}

func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result, err := h.HandleToolCall(ctx, name, args)
		return result, nil, err
	}
}

// HandleToolCall routes tool calls to the scenario handlers.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	switch name {
	case toolScenarioList:
		return h.handleScenarioList(arguments)
	case toolScenarioDescribe:
		return h.handleScenarioDescribe(arguments)
	case toolScenarioRun:
		return h.handleScenarioRun(ctx, arguments)
	default:
		return newToolResultError(errs.Newf(errs.InvalidArgument, "unknown tool: %s", name)), nil
	}
}

// toolErrorPayload is the JSON body of a failed tool call.
type toolErrorPayload struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func newToolResultError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: marshalToolJSON(toolErrorPayload{
				Code:    errs.CodeOf(err),
				Message: err.Error(),
			})},
		},
		IsError: true,
	}
}

func marshalToolJSON(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response","detail":%q}`, err.Error())
	}
	return string(data)
}

// decodeToolArgs converts loosely typed tool arguments into dst, rejecting
// unknown fields.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "encode arguments", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid arguments", err)
	}
	return nil
}

func (h *Handler) lookup(id string) (journeys.Entry, error) {
	if !isASCII(id) {
		return journeys.Entry{}, errs.New(errs.InvalidArgument, "id must be printable ASCII")
	}
	e, ok := h.registry.Get(id)
	if !ok {
		return journeys.Entry{}, errs.Newf(errs.InvalidArgument, "unknown scenario %q", id)
	}
	return e, nil
}

type matrixView struct {
	Roles     []identity.Role `json:"roles,omitempty"`
	Locales   []string        `json:"locales,omitempty"`
	Viewports []string        `json:"viewports,omitempty"`
}

type scenarioSummary struct {
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	Role        identity.Role `json:"role"`
	Steps       int           `json:"steps"`
	Matrix      matrixView    `json:"matrix"`
}

func summarize(e journeys.Entry) scenarioSummary {
	return scenarioSummary{
		ID:          e.ID(),
		Description: e.Scenario.Description,
		Role:        e.Scenario.Role(),
		Steps:       len(e.Scenario.Steps),
		Matrix:      matrixView(e.Matrix),
	}
}

func (h *Handler) handleScenarioList(args map[string]any) (*mcp.CallToolResult, error) {
	if err := decodeToolArgs(args, &struct{}{}); err != nil {
		return newToolResultError(err), nil
	}
	entries := h.registry.Entries()
	out := make([]scenarioSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, summarize(e))
	}
	return newToolResultText(marshalToolJSON(map[string]any{"scenarios": out})), nil
}

type stepView struct {
	Index       int      `json:"index"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Checkpoint  bool     `json:"checkpoint,omitempty"`
	Viewports   []string `json:"viewports,omitempty"`
}

func (h *Handler) handleScenarioDescribe(args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		ID     string `json:"id"`
		Locale string `json:"locale,omitempty"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return newToolResultError(err), nil
	}
	e, err := h.lookup(in.ID)
	if err != nil {
		return newToolResultError(err), nil
	}
	locale := in.Locale
	if locale == "" {
		locale = e.Scenario.OwnLocale()
	}

	cells, err := e.Matrix.Expand(e.Scenario)
	if err != nil {
		return newToolResultError(err), nil
	}
	cellKeys := make([]string, 0, len(cells))
	for _, c := range cells {
		cellKeys = append(cellKeys, c.Key())
	}
	steps := make([]stepView, 0, len(e.Scenario.Steps))
	for i, st := range e.Scenario.Steps {
		steps = append(steps, stepView{
			Index:       i + 1,
			Kind:        string(st.Kind),
			Description: st.Describe(locale),
			Checkpoint:  st.Independent,
			Viewports:   st.Viewports,
		})
	}
	return newToolResultText(marshalToolJSON(map[string]any{
		"scenario": summarize(e),
		"locale":   locale,
		"cells":    cellKeys,
		"steps":    steps,
		"warnings": e.Scenario.Lint(),
	})), nil
}

func (h *Handler) handleScenarioRun(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		ID        string   `json:"id,omitempty"`
		Document  string   `json:"document,omitempty"`
		Roles     []string `json:"roles,omitempty"`
		Locales   []string `json:"locales,omitempty"`
		Viewports []string `json:"viewports,omitempty"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return newToolResultError(err), nil
	}
	if h.runner == nil {
		return newToolResultError(errs.New(errs.Internal, "runs are unavailable on this endpoint")), nil
	}

	var (
		s scenario.Scenario
		m scenario.Matrix
	)
	switch {
	case in.ID != "" && in.Document != "":
		return newToolResultError(errs.New(errs.InvalidArgument, "pass either id or document, not both")), nil
	case in.Document != "":
		f, err := scenariofile.Parse([]byte(in.Document), h.catalog)
		if err != nil {
			return newToolResultError(err), nil
		}
		s, m = f.Scenario, f.Matrix
	case in.ID != "":
		e, err := h.lookup(in.ID)
		if err != nil {
			return newToolResultError(err), nil
		}
		s, m = e.Scenario, e.Matrix
	default:
		return newToolResultError(errs.New(errs.InvalidArgument, "id or document is required")), nil
	}

	if len(in.Roles)+len(in.Locales)+len(in.Viewports) > 0 {
		override, err := scenario.ParseMatrix(in.Roles, in.Locales, in.Viewports)
		if err != nil {
			return newToolResultError(errs.Wrap(errs.InvalidArgument, "matrix", err)), nil
		}
		m = override
	}
	if _, err := m.Expand(s); err != nil {
		return newToolResultError(err), nil
	}

	summaries, err := h.runner.RunAll(ctx, []scenario.Scenario{s}, m)
	if err != nil {
		return newToolResultError(err), nil
	}
	if len(summaries) == 0 {
		return newToolResultError(errs.Newf(errs.Internal, "scenario %q produced no summary", s.ID)), nil
	}
	// failed cells are reported in the summary, the call itself succeeded
	return newToolResultText(marshalToolJSON(summaries[0])), nil
}
