// Package tools adapts the dispatcher's action-routed handlers into the
// eight action-dispatching MCP tools and three standalone tools spec.md §6
// names. Each tool is a thin mcp.Tool wrapper: unmarshal the action
// envelope, gate and route through the dispatcher, translate the result or
// error into a ToolsCallResult.
package tools

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
)

type envelope struct {
	Action      string `json:"action"`
	ProjectPath string `json:"project_path"`
}

// ExecuteAction unmarshals the common action envelope, dispatches through
// d, and renders the outcome as a ToolsCallResult. Used by every one of
// the eight action-dispatching tools.
func ExecuteAction(ctx context.Context, d *dispatcher.Dispatcher, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var env envelope
	if err := json.Unmarshal(params, &env); err != nil {
		return mcp.ErrorResult("invalid parameters: " + err.Error()), nil
	}
	if env.Action == "" {
		return mcp.ErrorResult("action is required"), nil
	}

	result, err := d.Dispatch(ctx, env.Action, env.ProjectPath, params)
	if err != nil {
		return mcp.ErrorResultFromErr(err), nil
	}
	return mcp.JSONResult(result)
}

// ExecuteStandalone is ExecuteAction's counterpart for the three
// standalone tools, which carry no "action" field — the tool name itself
// selects the handler.
func ExecuteStandalone(ctx context.Context, d *dispatcher.Dispatcher, tool string, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var env envelope
	if err := json.Unmarshal(params, &env); err != nil {
		return mcp.ErrorResult("invalid parameters: " + err.Error()), nil
	}

	result, err := d.DispatchStandalone(ctx, tool, env.ProjectPath, params)
	if err != nil {
		return mcp.ErrorResultFromErr(err), nil
	}
	return mcp.JSONResult(result)
}
