// Package inscribe implements the inscribe tool: writing new memories,
// linking them, and pinning them against pruning.
package inscribe

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements inscribe.remember, inscribe.remember_batch, inscribe.link,
// and inscribe.pin.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the inscribe tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "inscribe" }

func (t *Tool) Description() string {
	return "Write to the project's memory: inscribe.remember and inscribe.remember_batch add memories, inscribe.link relates two memories, inscribe.pin exempts a memory from pruning. All require a live preflight token."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["inscribe.remember", "inscribe.remember_batch", "inscribe.link", "inscribe.pin"]
    },
    "project_path": {"type": "string"},
    "category": {
      "type": "string",
      "enum": ["decision", "pattern", "warning", "learning", "fact"],
      "description": "inscribe.remember: the memory's category"
    },
    "content": {"type": "string", "description": "inscribe.remember: the memory text"},
    "rationale": {"type": "string"},
    "context": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "file_path": {"type": "string"},
    "entities": {"type": "array", "items": {"type": "string"}},
    "pinned": {"type": "boolean"},
    "memories": {
      "type": "array",
      "description": "inscribe.remember_batch: a list of memory objects shaped like inscribe.remember's fields",
      "items": {"type": "object"}
    },
    "source": {"type": "integer", "description": "inscribe.link: source memory id"},
    "target": {"type": "integer", "description": "inscribe.link: target memory id"},
    "relationship": {
      "type": "string",
      "enum": ["led_to", "supersedes", "depends_on", "conflicts_with", "related_to"],
      "description": "inscribe.link: the relationship from source to target"
    },
    "id": {"type": "integer", "description": "inscribe.pin: the memory id"}
  },
  "required": ["action", "project_path"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
