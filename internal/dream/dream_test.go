package dream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/retriever"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

func newTestEngine(t *testing.T, cfg config.DreamConfig) (*Engine, *store.Store) {
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

	return New(s, rt, emb, lx, vx, cfg, nil), s
}

func putDecision(t *testing.T, s *store.Store, content string, worked bool) int64 {
	t.Helper()
	id, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: content})
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(id, worked, "outcome text"))
	return id
}

func TestRunSkipsFreshFailedDecisions(t *testing.T) {
	// A MinDecisionAgeHours this large can never be satisfied by an outcome
	// recorded moments ago, so the decision should be left untouched.
	cfg := config.DreamConfig{IdleTimeoutSeconds: 60, MaxDecisionsPerSession: 5, MinDecisionAgeHours: 24}
	e, s := newTestEngine(t, cfg)
	putDecision(t, s, "use approach A", false)

	require.NoError(t, e.Run(context.Background()))

	learnings, err := s.IterMemories(store.Filter{Categories: []store.Category{store.CategoryLearning}})
	require.NoError(t, err)
	require.Empty(t, learnings, "a decision younger than the minimum age should not be revisited")
}

func TestRunIgnoresSuccessfulDecisions(t *testing.T) {
	cfg := config.DreamConfig{IdleTimeoutSeconds: 60, MaxDecisionsPerSession: 5, MinDecisionAgeHours: 0}
	e, s := newTestEngine(t, cfg)
	putDecision(t, s, "use approach B", true)

	require.NoError(t, e.Run(context.Background()))

	learnings, err := s.IterMemories(store.Filter{Categories: []store.Category{store.CategoryLearning}})
	require.NoError(t, err)
	require.Empty(t, learnings, "a decision that worked should never be revisited")
}

func TestRunRevisesStaleFailedDecisionWithBetterAlternative(t *testing.T) {
	cfg := config.DreamConfig{IdleTimeoutSeconds: 60, MaxDecisionsPerSession: 5, MinDecisionAgeHours: 0}
	e, s := newTestEngine(t, cfg)

	failedID := putDecision(t, s, "retry on every network error", false)
	require.NoError(t, s.SetImportance(failedID, 0.2))

	betterID, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "retry on every network error with backoff"})
	require.NoError(t, err)
	require.NoError(t, s.SetImportance(betterID, 0.9))

	// revise finds alternatives through the retriever, so both decisions
	// must be in the lexical and vector indexes.
	for id, content := range map[int64]string{failedID: "retry on every network error", betterID: "retry on every network error with backoff"} {
		e.lexical.Add(lexical.Doc{ID: id, Content: content})
		vec, err := e.embedder.EncodeDocument(context.Background(), content)
		require.NoError(t, err)
		require.NoError(t, e.vector.Add(id, vec))
	}

	require.NoError(t, e.Run(context.Background()))

	learnings, err := s.IterMemories(store.Filter{Categories: []store.Category{store.CategoryLearning}})
	require.NoError(t, err)
	require.Len(t, learnings, 1)
	require.Contains(t, learnings[0].Tags, dreamTag)

	links, err := s.AllLinks()
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, failedID, links[0].Source)
	require.Equal(t, store.RelLedTo, links[0].Relationship)
}

func TestRunRespectsMaxDecisionsPerSession(t *testing.T) {
	cfg := config.DreamConfig{IdleTimeoutSeconds: 60, MaxDecisionsPerSession: 1, MinDecisionAgeHours: 0}
	e, s := newTestEngine(t, cfg)

	for i := 0; i < 3; i++ {
		id := putDecision(t, s, "stale decision", false)
		require.NoError(t, s.SetImportance(id, 0.1))
	}
	betterID, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "much better decision"})
	require.NoError(t, err)
	require.NoError(t, s.SetImportance(betterID, 0.9))

	require.NoError(t, e.Run(context.Background()))

	learnings, err := s.IterMemories(store.Filter{Categories: []store.Category{store.CategoryLearning}})
	require.NoError(t, err)
	require.LessOrEqual(t, len(learnings), 1, "MaxDecisionsPerSession should bound how many revisions are written per pass")
}
