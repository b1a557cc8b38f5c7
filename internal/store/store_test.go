package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutMemoryAndGet(t *testing.T) {
	s := openTestStore(t)

	id, err := s.PutMemory(Draft{Category: CategoryDecision, Content: "use JWT for auth"})
	require.NoError(t, err)
	require.NotZero(t, id)

	m, err := s.GetMemory(id)
	require.NoError(t, err)
	require.Equal(t, "use JWT for auth", m.Content)
	require.False(t, m.Archived)
	require.InDelta(t, 0.5, m.ImportanceScore, 0.0001)
}

func TestPutMemoryRejectsInvalidCategory(t *testing.T) {
	s := openTestStore(t)
	_, err := s.PutMemory(Draft{Category: "bogus", Content: "x"})
	require.Error(t, err)
}

func TestVersioningRoundTrip(t *testing.T) {
	s := openTestStore(t)
	id, err := s.PutMemory(Draft{Category: CategoryLearning, Content: "v1"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateContent(id, "v2", "", "", nil))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.UpdateContent(id, "v3", "", "", nil))

	versions, err := s.Versions(id)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "v1", versions[0].Content)
	require.Equal(t, "v2", versions[1].Content)
	require.True(t, versions[1].TransactionTime.After(versions[0].TransactionTime) || versions[1].TransactionTime.Equal(versions[0].TransactionTime))
}

func TestSupersessionRejectsCycle(t *testing.T) {
	s := openTestStore(t)
	m1, err := s.PutMemory(Draft{Category: CategoryDecision, Content: "m1"})
	require.NoError(t, err)
	m2, err := s.PutMemory(Draft{Category: CategoryDecision, Content: "m2"})
	require.NoError(t, err)

	require.NoError(t, s.PutLink(Link{Source: m2, Target: m1, Relationship: RelSupersedes}))
	err = s.PutLink(Link{Source: m1, Target: m2, Relationship: RelSupersedes})
	require.Error(t, err)
}

func TestActiveContextCapAndDuplicate(t *testing.T) {
	s := openTestStore(t)
	var ids []int64
	for i := 0; i < 11; i++ {
		id, err := s.PutMemory(Draft{Category: CategoryPattern, Content: "p"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, s.PutActiveContext(ActiveContextEntry{MemoryID: ids[i]}))
	}
	err := s.PutActiveContext(ActiveContextEntry{MemoryID: ids[10]})
	require.Error(t, err)

	err = s.PutActiveContext(ActiveContextEntry{MemoryID: ids[0]})
	require.Error(t, err)
}

func TestActiveContextExpiryElided(t *testing.T) {
	s := openTestStore(t)
	id, err := s.PutMemory(Draft{Category: CategoryPattern, Content: "p"})
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.PutActiveContext(ActiveContextEntry{MemoryID: id, ExpiresAt: &past}))

	entries, err := s.ListActiveContext()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestBiTemporalHappenedAt(t *testing.T) {
	s := openTestStore(t)
	past := time.Now().Add(-48 * time.Hour)
	id, err := s.PutMemory(Draft{Category: CategoryDecision, Content: "backfilled", HappenedAt: &past})
	require.NoError(t, err)

	m, err := s.GetMemory(id)
	require.NoError(t, err)
	require.WithinDuration(t, past, m.ValidTime, time.Second)

	_, err = s.AtTime(id, past.Add(-time.Second))
	require.Error(t, err)

	v, err := s.AtTime(id, past)
	require.NoError(t, err)
	require.Equal(t, "backfilled", v.Content)
}

func TestMergeRecallCountAddsAndCarriesLatestTimestamp(t *testing.T) {
	s := openTestStore(t)
	keepID, err := s.PutMemory(Draft{Category: CategoryDecision, Content: "keep"})
	require.NoError(t, err)
	require.NoError(t, s.Recall([]int64{keepID}))

	kept, err := s.GetMemory(keepID)
	require.NoError(t, err)
	require.Equal(t, int64(1), kept.RecallCount)

	later := time.Now().Add(time.Hour)
	require.NoError(t, s.MergeRecallCount(keepID, 4, &later))

	kept, err = s.GetMemory(keepID)
	require.NoError(t, err)
	require.Equal(t, int64(5), kept.RecallCount)
	require.NotNil(t, kept.LastRecalledAt)
	require.WithinDuration(t, later, *kept.LastRecalledAt, time.Second)
}

func TestAtTimeReturnsCurrentRowAfterEdits(t *testing.T) {
	s := openTestStore(t)
	id, err := s.PutMemory(Draft{Category: CategoryLearning, Content: "v1"})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.UpdateContent(id, "v2", "", "", nil))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.UpdateContent(id, "v3", "", "", nil))

	m, err := s.GetMemory(id)
	require.NoError(t, err)

	v, err := s.AtTime(id, m.TransactionTime)
	require.NoError(t, err)
	require.Equal(t, "v3", v.Content)

	v, err = s.AtTime(id, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "v3", v.Content)
}
