// Package understand implements the understand tool: graph queries over
// the memory relationship index.
package understand

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// Tool implements understand.neighbors, understand.chain,
// understand.subgraph, and understand.evolution.
type Tool struct {
	disp *dispatcher.Dispatcher
}

// New constructs the understand tool over a Dispatcher.
func New(d *dispatcher.Dispatcher) *Tool {
	return &Tool{disp: d}
}

func (t *Tool) Name() string { return "understand" }

func (t *Tool) Description() string {
	return "Query the memory relationship graph: understand.neighbors for local adjacency, understand.chain for the shortest causal path between two memories, understand.subgraph for a BFS neighborhood, understand.evolution for how an entity's memories changed over time."
}

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["understand.neighbors", "understand.chain", "understand.subgraph", "understand.evolution"]
    },
    "project_path": {"type": "string"},
    "id": {"type": "integer", "description": "understand.neighbors: the memory id"},
    "relationship": {
      "type": "string",
      "enum": ["led_to", "supersedes", "depends_on", "conflicts_with", "related_to"],
      "description": "understand.neighbors: restrict to this relationship type"
    },
    "depth": {"type": "integer", "description": "understand.neighbors/subgraph: expansion depth"},
    "from": {"type": "integer", "description": "understand.chain: source memory id"},
    "to": {"type": "integer", "description": "understand.chain: target memory id"},
    "max_depth": {"type": "integer", "description": "understand.chain: maximum path length to search"},
    "seed_ids": {
      "type": "array",
      "items": {"type": "integer"},
      "description": "understand.subgraph: memory ids to expand from"
    },
    "entity_name": {"type": "string", "description": "understand.evolution: the entity to trace"}
  },
  "required": ["action", "project_path"]
}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteAction(ctx, t.disp, params)
}
