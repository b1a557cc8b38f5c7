// Package govern implements the govern tool: reading and writing the
// project's standing rules.
package govern

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements govern.add_rule, govern.update_rule, and
// govern.list_rules.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the govern tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "govern" }

func (t *Tool) Description() string {
	return "Manage the project's standing rules: govern.add_rule and govern.update_rule write a rule (requires preflight); govern.list_rules reads all rules by priority."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["govern.add_rule", "govern.update_rule", "govern.list_rules"]
    },
    "project_path": {"type": "string"},
    "id": {"type": "integer", "description": "govern.update_rule: the rule id to update"},
    "trigger": {"type": "string", "description": "the condition or tag that activates this rule"},
    "must_do": {"type": "array", "items": {"type": "string"}},
    "must_not": {"type": "array", "items": {"type": "string"}},
    "ask_first": {"type": "array", "items": {"type": "string"}},
    "warnings": {"type": "array", "items": {"type": "string"}},
    "priority": {"type": "integer"},
    "enabled": {"type": "boolean"}
  },
  "required": ["action", "project_path"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
