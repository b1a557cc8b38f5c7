package vectorindex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
)

func unit(dim int, hot int) embedder.Vec {
	v := make(embedder.Vec, dim)
	v[hot] = 1
	return v
}

func TestAddAndSearchReturnsNearestFirst(t *testing.T) {
	ix, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(1, unit(4, 0)))
	require.NoError(t, ix.Add(2, unit(4, 1)))
	require.NoError(t, ix.Add(3, unit(4, 2)))

	results, err := ix.Search(unit(4, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].ID)
	require.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestGetReturnsStoredVector(t *testing.T) {
	ix, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(7, unit(4, 2)))

	v, err := ix.Get(7)
	require.NoError(t, err)
	require.Equal(t, embedder.Vec{0, 0, 1, 0}, v)
}

func TestRemoveExcludesFromSearch(t *testing.T) {
	ix, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(1, unit(4, 0)))
	require.NoError(t, ix.Remove(1))

	results, err := ix.Search(unit(4, 0), 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	ix, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer ix.Close()

	err = ix.Add(1, unit(8, 0))
	require.Error(t, err)
}

func TestReopenWithDifferentDimensionSelfDestructs(t *testing.T) {
	dir := t.TempDir()

	ix, err := Open(dir, 4)
	require.NoError(t, err)
	require.NoError(t, ix.Add(1, unit(4, 0)))
	require.NoError(t, ix.Close())

	ix2, err := Open(dir, 8)
	require.NoError(t, err)
	defer ix2.Close()
	require.True(t, ix2.Rebuilt)

	results, err := ix2.Search(unit(8, 0), 5)
	require.NoError(t, err)
	require.Empty(t, results)
	require.NoError(t, ix2.Add(1, unit(8, 0)))

	results, err = ix2.Search(unit(8, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, math.IsNaN(results[0].Distance))
}
