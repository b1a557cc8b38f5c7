// Package maintain implements the maintain tool: archival, pruning,
// duplicate cleanup, and community-graph compaction.
package maintain

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements maintain.archive, maintain.prune, maintain.cleanup, and
// maintain.compact.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the maintain tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "maintain" }

func (t *Tool) Description() string {
	return "Housekeep the project's memory: maintain.archive retires a memory, maintain.prune removes stale low-value memories, maintain.cleanup merges duplicates, maintain.compact rebuilds the community graph. All require a live preflight token."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["maintain.archive", "maintain.prune", "maintain.cleanup", "maintain.compact"]
    },
    "project_path": {"type": "string"},
    "id": {"type": "integer", "description": "maintain.archive: the memory id to archive"},
    "older_than_days": {"type": "integer", "description": "maintain.prune: age threshold in days"},
    "dry_run": {"type": "boolean", "description": "maintain.prune/cleanup: report candidates without applying changes"}
  },
  "required": ["action", "project_path"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
