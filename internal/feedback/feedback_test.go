package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *vectorindex.Index) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vx, err := vectorindex.Open(t.TempDir(), 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vx.Close() })

	cfg := config.FeedbackConfig{
		FactPromotionThreshold: 3,
		PruneImportanceFloor:   0.3,
		PruneMinRecallCount:    2,
		DuplicateJaccardMin:    0.6,
		DuplicateCosineMin:     0.9,
		SurpriseK:              5,
	}
	return New(s, vx, cfg), s, vx
}

func TestCleanupMergesRecallCountIntoSurvivor(t *testing.T) {
	e, s, vx := newTestEngine(t)

	id1, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "use JWT", FilePath: "auth.go", Tags: []string{"auth", "jwt"}})
	require.NoError(t, err)
	id2, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "use JWT too", FilePath: "auth.go", Tags: []string{"auth", "jwt"}})
	require.NoError(t, err)

	require.NoError(t, s.SetImportance(id1, 0.9))
	require.NoError(t, s.SetImportance(id2, 0.1))
	require.NoError(t, s.Recall([]int64{id2}))
	require.NoError(t, s.Recall([]int64{id2}))
	require.NoError(t, s.Recall([]int64{id2}))

	vec := make(embedder.Vec, 16)
	vec[0] = 1
	require.NoError(t, vx.Add(id1, vec))
	require.NoError(t, vx.Add(id2, vec))

	pairs, err := e.Cleanup(false)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.Equal(t, id1, pairs[0].Keep.ID)
	require.Equal(t, id2, pairs[0].Removed.ID)

	kept, err := s.GetMemory(id1)
	require.NoError(t, err)
	require.Equal(t, int64(3), kept.RecallCount)

	_, err = s.GetMemory(id2)
	require.Error(t, err)
}

func TestRecordOutcomeAppliesEWMA(t *testing.T) {
	e, s, _ := newTestEngine(t)
	id, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "x"})
	require.NoError(t, err)

	require.NoError(t, e.RecordOutcome(id, false, "bad"))

	m, err := s.GetMemory(id)
	require.NoError(t, err)
	require.InDelta(t, 0.7*0.5+0.3*0.2, m.ImportanceScore, 0.0001)
}

func TestRecordOutcomePromotesFactAfterThreshold(t *testing.T) {
	e, s, _ := newTestEngine(t)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.PutMemory(store.Draft{Category: store.CategoryLearning, Content: "repeat this pattern"})
		require.NoError(t, err)
		ids = append(ids, id)
		require.NoError(t, e.RecordOutcome(id, true, "worked"))
	}

	fact, err := s.GetFact("repeat this pattern")
	require.NoError(t, err)
	require.Equal(t, ids[0], fact.SourceID)
}

func TestComputeSurpriseIsHighForFirstInsert(t *testing.T) {
	_, _, vx := newTestEngine(t)
	emb := embedder.New(16, "q: ", "d: ", 4)
	defer emb.Close()

	v, err := emb.EncodeDocument(context.Background(), "a novel idea")
	require.NoError(t, err)

	surprise, err := ComputeSurprise(context.Background(), vx, v, 5)
	require.NoError(t, err)
	require.Equal(t, 1.0, surprise)
}

func TestComputeSurpriseIsLowForNearDuplicate(t *testing.T) {
	_, s, vx := newTestEngine(t)
	emb := embedder.New(16, "q: ", "d: ", 4)
	defer emb.Close()

	id, err := s.PutMemory(store.Draft{Category: store.CategoryPattern, Content: "use retries with backoff"})
	require.NoError(t, err)
	v1, err := emb.EncodeDocument(context.Background(), "use retries with backoff")
	require.NoError(t, err)
	require.NoError(t, vx.Add(id, v1))

	surprise, err := ComputeSurprise(context.Background(), vx, v1, 5)
	require.NoError(t, err)
	require.Less(t, surprise, 0.2)
}

func TestPruneSkipsPinnedRegardlessOfAge(t *testing.T) {
	e, s, _ := newTestEngine(t)
	id, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "old and unimportant", Pinned: true})
	require.NoError(t, err)
	require.NoError(t, s.SetImportance(id, 0.0))

	candidates, err := e.Prune(0, true)
	require.NoError(t, err)
	for _, c := range candidates {
		require.NotEqual(t, id, c.Memory.ID)
	}
}

func TestPruneDryRunDoesNotDelete(t *testing.T) {
	e, s, _ := newTestEngine(t)
	id, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "stale"})
	require.NoError(t, err)
	require.NoError(t, s.SetImportance(id, 0.0))

	candidates, err := e.Prune(0, true)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	_, err = s.GetMemory(id)
	require.NoError(t, err)
}
