package commune

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/covenant"
	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/feedback"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/retriever"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

func newTestDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vx, err := vectorindex.Open(dir, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vx.Close() })

	emb := embedder.New(16, "query: ", "passage: ", 4)
	t.Cleanup(emb.Close)

	lx := lexical.New(1.5, 0.75)
	ge := graphengine.New()

	rcfg := config.RetrievalConfig{RRFK: 60, MaxPerFile: 3, SimpleLimit: 5, MediumLimit: 10, ComplexLimit: 20, CandidateTopK: 20, GraphHopDepth: 2, AutoZoomEnabled: true}
	fcfg := config.FeedbackConfig{FactPromotionThreshold: 3, PruneImportanceFloor: 0.3, PruneMinRecallCount: 2, DuplicateJaccardMin: 0.6, DuplicateCosineMin: 0.9, SurpriseK: 5}
	rt := retriever.New(s, emb, lx, vx, ge, rcfg, fcfg, nil)
	fb := feedback.New(s, vx, fcfg)
	sess := covenant.NewSession(s, dir, time.Minute)
	cfg := &config.Config{Covenant: config.CovenantConfig{PreflightTTLSeconds: 300}, Feedback: fcfg, Graph: config.GraphConfig{MinCommunitySize: 3}}

	return dispatcher.New(dir, s, emb, lx, vx, ge, rt, fb, sess, cfg, nil)
}

func TestInputSchemaIsValidJSON(t *testing.T) {
	tool := New(newTestDispatcher(t))
	var v map[string]any
	require.NoError(t, json.Unmarshal(tool.InputSchema(), &v))
}

func TestBriefingExecutesAndReportsHealth(t *testing.T) {
	d := newTestDispatcher(t)
	tool := New(d)

	raw, _ := json.Marshal(map[string]any{"action": "commune.briefing", "project_path": d.ProjectPath})
	res, err := tool.Execute(context.Background(), raw)
	require.NoError(t, err)
	require.False(t, res.IsError)

	raw, _ = json.Marshal(map[string]any{"action": "commune.health", "project_path": d.ProjectPath})
	res, err = tool.Execute(context.Background(), raw)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Contains(t, res.Content[0].Text, "BRIEFED")
}

func TestMissingActionIsReportedAsToolError(t *testing.T) {
	tool := New(newTestDispatcher(t))
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"project_path":"x"}`))
	require.NoError(t, err)
	require.True(t, res.IsError)
}
