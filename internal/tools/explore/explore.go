// Package explore implements the explore tool: reading a memory's
// bi-temporal version history.
package explore

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements explore.versions and explore.at_time.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the explore tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "explore" }

func (t *Tool) Description() string {
	return "Inspect a memory's history: explore.versions lists every recorded revision; explore.at_time returns the revision in effect at a given instant."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {"type": "string", "enum": ["explore.versions", "explore.at_time"]},
    "project_path": {"type": "string"},
    "id": {"type": "integer", "description": "the memory id"},
    "at": {"type": "string", "format": "date-time", "description": "explore.at_time: the instant to resolve against"}
  },
  "required": ["action", "project_path", "id"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
