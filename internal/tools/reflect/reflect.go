// Package reflect implements the reflect tool: recording whether a
// memory's guidance worked out in practice.
package reflect

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements reflect.outcome.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the reflect tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "reflect" }

func (t *Tool) Description() string {
	return "Record the outcome of following a memory's guidance. reflect.outcome updates its importance score and, on repeated success, may promote a learning to a fact."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {"type": "string", "enum": ["reflect.outcome"]},
    "project_path": {"type": "string"},
    "id": {"type": "integer", "description": "the memory id the outcome applies to"},
    "worked": {"type": "boolean"},
    "text": {"type": "string", "description": "free-text detail on what happened"}
  },
  "required": ["action", "project_path", "id", "worked"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
