package standalone

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimulateDecisionMetadataIsWellFormed(t *testing.T) {
	tool := NewSimulateDecision(nil)
	require.Equal(t, "simulate_decision", tool.Name())
	require.NotEmpty(t, tool.Description())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.InputSchema(), &schema))
	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "proposal")
}

func TestEvolveRuleMetadataIsWellFormed(t *testing.T) {
	tool := NewEvolveRule(nil)
	require.Equal(t, "evolve_rule", tool.Name())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.InputSchema(), &schema))
	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "rule_id")
}

func TestDebateInternalMetadataIsWellFormed(t *testing.T) {
	tool := NewDebateInternal(nil)
	require.Equal(t, "debate_internal", tool.Name())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.InputSchema(), &schema))
	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "topic")
}
