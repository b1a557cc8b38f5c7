// Package standalone implements the three tools with no action vocabulary
// of their own: simulate_decision, evolve_rule, debate_internal.
package standalone

import (
	"context"
	"encoding/json"

	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/tools"
)

// SimulateDecision forecasts a confidence score for a proposed decision
// from the outcomes of similar past decisions.
type SimulateDecision struct {
	disp *dispatcher.Dispatcher
}

func NewSimulateDecision(d *dispatcher.Dispatcher) *SimulateDecision {
	return &SimulateDecision{disp: d}
}

func (t *SimulateDecision) Name() string { return "simulate_decision" }

func (t *SimulateDecision) Description() string {
	return "Forecast how a proposed decision is likely to play out, based on the recorded outcomes of similar past decisions."
}

func (t *SimulateDecision) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string"},
    "proposal": {"type": "string", "description": "the decision under consideration"},
    "limit": {"type": "integer", "description": "maximum precedent decisions to weigh"}
  },
  "required": ["project_path", "proposal"]
}`)
}

func (t *SimulateDecision) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteStandalone(ctx, t.disp, "simulate_decision", params)
}

// EvolveRule appends must_not clauses to a rule from decisions recorded as
// worked=false under that rule's trigger.
type EvolveRule struct {
	disp *dispatcher.Dispatcher
}

func NewEvolveRule(d *dispatcher.Dispatcher) *EvolveRule {
	return &EvolveRule{disp: d}
}

func (t *EvolveRule) Name() string { return "evolve_rule" }

func (t *EvolveRule) Description() string {
	return "Evolve a governance rule by folding in must_not clauses learned from decisions taken under it that did not work out. Requires a live preflight token."
}

func (t *EvolveRule) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string"},
    "rule_id": {"type": "integer"}
  },
  "required": ["project_path", "rule_id"]
}`)
}

func (t *EvolveRule) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteStandalone(ctx, t.disp, "evolve_rule", params)
}

// DebateInternal surfaces both sides of a disagreement among stored
// memories on a topic, rather than averaging them into one answer.
type DebateInternal struct {
	disp *dispatcher.Dispatcher
}

func NewDebateInternal(d *dispatcher.Dispatcher) *DebateInternal {
	return &DebateInternal{disp: d}
}

func (t *DebateInternal) Name() string { return "debate_internal" }

func (t *DebateInternal) Description() string {
	return "Surface conflicting memories on a topic as opposing perspectives instead of a single averaged answer."
}

func (t *DebateInternal) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string"},
    "topic": {"type": "string"},
    "limit": {"type": "integer"}
  },
  "required": ["project_path", "topic"]
}`)
}

func (t *DebateInternal) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return tools.ExecuteStandalone(ctx, t.disp, "debate_internal", params)
}
