// Package consult implements the consult tool: preflight token issuance and
// hybrid memory recall.
package consult

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements consult.preflight and consult.recall.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the consult tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "consult" }

func (t *Tool) Description() string {
	return "Query the project's memory: consult.preflight issues a short-lived mutation token; consult.recall runs the hybrid retriever over stored memories."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["consult.preflight", "consult.recall"],
      "description": "consult.preflight or consult.recall"
    },
    "project_path": {
      "type": "string",
      "description": "Absolute path to the project directory"
    },
    "description": {
      "type": "string",
      "description": "consult.preflight: a short description of the intended mutation, hashed for audit"
    },
    "topic": {
      "type": "string",
      "description": "consult.recall: the natural-language query to retrieve memories for"
    },
    "categories": {
      "type": "array",
      "items": {"type": "string"},
      "description": "consult.recall: restrict to these memory categories"
    },
    "tags": {
      "type": "array",
      "items": {"type": "string"},
      "description": "consult.recall: restrict to memories carrying any of these tags"
    },
    "file_prefix": {
      "type": "string",
      "description": "consult.recall: restrict to memories whose file_path has this prefix"
    },
    "complexity": {
      "type": "string",
      "enum": ["simple", "medium", "complex"],
      "description": "consult.recall: override automatic query-complexity classification"
    },
    "limit": {
      "type": "integer",
      "description": "consult.recall: maximum results to return"
    }
  },
  "required": ["action", "project_path"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
