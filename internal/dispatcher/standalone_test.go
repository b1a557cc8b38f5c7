package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
)

func briefAndPreflight(t *testing.T, d *Dispatcher) {
	t.Helper()
	_, err := d.Dispatch(context.Background(), "commune.briefing", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), "consult.preflight", d.ProjectPath, json.RawMessage(`{"description":"test"}`))
	require.NoError(t, err)
}

func rememberVia(t *testing.T, d *Dispatcher, category, content string) int64 {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{"category": category, "content": content})
	res, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw)
	require.NoError(t, err)
	return res.(*rememberResult).ID
}

func TestSimulateDecisionWithNoPrecedentsIsNeutral(t *testing.T) {
	d := newTestDispatcher(t)
	briefAndPreflight(t, d)

	raw, _ := json.Marshal(map[string]any{"proposal": "should we use JWT for auth"})
	res, err := d.DispatchStandalone(context.Background(), "simulate_decision", d.ProjectPath, raw)
	require.NoError(t, err)
	require.Equal(t, 0.5, res.(*simulateDecisionResult).Confidence)
}

func TestSimulateDecisionWeightsByOutcome(t *testing.T) {
	d := newTestDispatcher(t)
	briefAndPreflight(t, d)

	id := rememberVia(t, d, "decision", "use JWT for auth")
	outcomeRaw, _ := json.Marshal(map[string]any{"id": id, "worked": true, "text": "worked well"})
	_, err := d.Dispatch(context.Background(), "reflect.outcome", d.ProjectPath, outcomeRaw)
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]any{"proposal": "use JWT for auth"})
	res, err := d.DispatchStandalone(context.Background(), "simulate_decision", d.ProjectPath, raw)
	require.NoError(t, err)
	require.Greater(t, res.(*simulateDecisionResult).Confidence, 0.5)
}

func TestEvolveRuleAddsMustNotFromFailedOutcomes(t *testing.T) {
	d := newTestDispatcher(t)
	briefAndPreflight(t, d)

	ruleRaw, _ := json.Marshal(map[string]any{"trigger": "auth-change"})
	ruleRes, err := d.Dispatch(context.Background(), "govern.add_rule", d.ProjectPath, ruleRaw)
	require.NoError(t, err)
	ruleID := ruleRes.(*ruleResult).ID

	raw, _ := json.Marshal(map[string]any{"category": "decision", "content": "skip validation for speed", "tags": []string{"auth-change"}})
	res, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw)
	require.NoError(t, err)
	memID := res.(*rememberResult).ID

	outcomeRaw, _ := json.Marshal(map[string]any{"id": memID, "worked": false, "text": "caused a regression"})
	_, err = d.Dispatch(context.Background(), "reflect.outcome", d.ProjectPath, outcomeRaw)
	require.NoError(t, err)

	evolveRaw, _ := json.Marshal(map[string]any{"rule_id": ruleID})
	out, err := d.DispatchStandalone(context.Background(), "evolve_rule", d.ProjectPath, evolveRaw)
	require.NoError(t, err)
	require.Contains(t, out.(*evolveRuleResult).AddedMustNot, "skip validation for speed")
}

func TestEvolveRuleRequiresPreflight(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.briefing", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]any{"rule_id": 1})
	_, err = d.DispatchStandalone(context.Background(), "evolve_rule", d.ProjectPath, raw)
	require.Error(t, err)
	require.Equal(t, errs.CounselRequired, errs.KindOf(err))
}

func TestDebateInternalSurfacesConflicts(t *testing.T) {
	d := newTestDispatcher(t)
	briefAndPreflight(t, d)

	id1 := rememberVia(t, d, "decision", "use synchronous replication")
	id2 := rememberVia(t, d, "decision", "use asynchronous replication")

	linkRaw, _ := json.Marshal(map[string]any{"source": id1, "target": id2, "relationship": string(store.RelConflictsWith)})
	_, err := d.Dispatch(context.Background(), "inscribe.link", d.ProjectPath, linkRaw)
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]any{"topic": "replication"})
	out, err := d.DispatchStandalone(context.Background(), "debate_internal", d.ProjectPath, raw)
	require.NoError(t, err)
	require.NotEmpty(t, out.(*debateInternalResult).Perspectives)
}
