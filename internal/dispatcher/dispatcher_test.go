package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/covenant"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/feedback"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/retriever"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
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

	rcfg := config.RetrievalConfig{
		RRFK: 60, MaxPerFile: 3, SimpleLimit: 5, MediumLimit: 10, ComplexLimit: 20,
		CandidateTopK: 20, GraphHopDepth: 2, AutoZoomEnabled: true,
	}
	fcfg := config.FeedbackConfig{
		FactPromotionThreshold: 3, PruneImportanceFloor: 0.3, PruneMinRecallCount: 2,
		DuplicateJaccardMin: 0.6, DuplicateCosineMin: 0.9, SurpriseK: 5,
	}
	rt := retriever.New(s, emb, lx, vx, ge, rcfg, fcfg, nil)
	fb := feedback.New(s, vx, fcfg)

	sess := covenant.NewSession(s, dir, time.Minute)

	cfg := &config.Config{
		Covenant: config.CovenantConfig{PreflightTTLSeconds: 300},
		Feedback: fcfg,
		Graph:    config.GraphConfig{MinCommunitySize: 3},
	}

	return New(dir, s, emb, lx, vx, ge, rt, fb, sess, cfg, nil)
}

func TestDispatchRejectsMismatchedProjectPath(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.health", "/some/other/path", json.RawMessage(`{}`))
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestDispatchBlocksMutationBeforeBriefing(t *testing.T) {
	d := newTestDispatcher(t)
	raw, _ := json.Marshal(map[string]any{"category": "decision", "content": "x"})
	_, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw)
	require.Error(t, err)
	require.Equal(t, errs.CommunionRequired, errs.KindOf(err))
}

func TestDispatchAllowsReadsWhileCold(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.health", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)
}

func TestBriefingTransitionsOutOfCold(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.briefing", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, covenant.Briefed, d.Session.State())
}

func TestMutationRequiresPreflightAfterBriefing(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.briefing", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]any{"category": "decision", "content": "x"})
	_, err = d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw)
	require.Error(t, err)
	require.Equal(t, errs.CounselRequired, errs.KindOf(err))
}

func TestPreflightThenRememberSucceeds(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.briefing", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)

	pre, err := d.Dispatch(context.Background(), "consult.preflight", d.ProjectPath, json.RawMessage(`{"description":"adding a memory"}`))
	require.NoError(t, err)
	require.NotEmpty(t, pre.(*preflightResult).Token)

	raw, _ := json.Marshal(map[string]any{"category": "decision", "content": "use JWT for auth"})
	res, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw)
	require.NoError(t, err)
	require.NotZero(t, res.(*rememberResult).ID)
}

func TestUnknownActionIsInvalidArgument(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "bogus.action", d.ProjectPath, json.RawMessage(`{}`))
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestCompactDerivesCommunitySummaryFromMembers(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.briefing", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), "consult.preflight", d.ProjectPath, json.RawMessage(`{"description":"linking"}`))
	require.NoError(t, err)

	raw1, _ := json.Marshal(map[string]any{"category": "decision", "content": "adopt JWT for auth"})
	res1, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw1)
	require.NoError(t, err)
	id1 := res1.(*rememberResult).ID

	raw2, _ := json.Marshal(map[string]any{"category": "decision", "content": "rotate JWT signing keys"})
	res2, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw2)
	require.NoError(t, err)
	id2 := res2.(*rememberResult).ID

	linkRaw, _ := json.Marshal(map[string]any{"source": id1, "target": id2, "relationship": "related_to"})
	_, err = d.Dispatch(context.Background(), "inscribe.link", d.ProjectPath, linkRaw)
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), "maintain.compact", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, 1, res.(*compactResult).CommunityCount)

	communities, err := d.Store.AllCommunities()
	require.NoError(t, err)
	require.Len(t, communities, 1)
	require.Contains(t, communities[0].Summary, "JWT")
	require.NotContains(t, communities[0].Summary, "community of")
	require.NotEqual(t, "miscellaneous", communities[0].Summary)
}

func TestLinkAndNeighborsRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "commune.briefing", d.ProjectPath, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), "consult.preflight", d.ProjectPath, json.RawMessage(`{"description":"linking"}`))
	require.NoError(t, err)

	raw1, _ := json.Marshal(map[string]any{"category": "decision", "content": "first"})
	res1, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw1)
	require.NoError(t, err)
	id1 := res1.(*rememberResult).ID

	raw2, _ := json.Marshal(map[string]any{"category": "decision", "content": "second"})
	res2, err := d.Dispatch(context.Background(), "inscribe.remember", d.ProjectPath, raw2)
	require.NoError(t, err)
	id2 := res2.(*rememberResult).ID

	linkRaw, _ := json.Marshal(map[string]any{"source": id1, "target": id2, "relationship": "led_to"})
	_, err = d.Dispatch(context.Background(), "inscribe.link", d.ProjectPath, linkRaw)
	require.NoError(t, err)

	neighborsRaw, _ := json.Marshal(map[string]any{"id": id1, "depth": 1})
	out, err := d.Dispatch(context.Background(), "understand.neighbors", d.ProjectPath, neighborsRaw)
	require.NoError(t, err)
	require.Contains(t, out.([]int64), id2)
}
