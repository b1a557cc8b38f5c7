// Package commune implements the commune tool: briefing and health-check
// actions, the only mutation-free entry points permitted while a session is
// COLD (spec.md §4.7).
package commune

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements commune.briefing and commune.health.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the commune tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "commune" }

func (t *Tool) Description() string {
	return "Open or check a project session: commune.briefing summarizes the project's memory and activates the session; commune.health reports session state."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["commune.briefing", "commune.health"],
      "description": "commune.briefing or commune.health"
    },
    "project_path": {
      "type": "string",
      "description": "Absolute path to the project directory"
    }
  },
  "required": ["action", "project_path"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
