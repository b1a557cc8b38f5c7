package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunRepopulatesLexicalIndexAndGraph(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vx, err := vectorindex.Open(dir, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vx.Close() })

	emb := embedder.New(16, "query: ", "passage: ", 4)
	t.Cleanup(emb.Close)

	first, err := s.PutMemory(store.Draft{Category: store.CategoryDecision, Content: "adopted sqlite for local storage"})
	require.NoError(t, err)
	second, err := s.PutMemory(store.Draft{Category: store.CategoryPattern, Content: "single writer lock guards every mutation"})
	require.NoError(t, err)
	require.NoError(t, s.PutLink(store.Link{Source: first, Target: second, Relationship: store.RelLedTo}))

	lx := lexical.New(1.5, 0.75)
	ge := graphengine.New()

	require.NoError(t, Run(context.Background(), s, emb, lx, vx, ge, false, noopLogger()))

	hits := lx.Search("sqlite storage", 5)
	require.NotEmpty(t, hits)
	require.Equal(t, first, hits[0].ID)

	neighbors := ge.Neighbors(first, nil, 1)
	require.Contains(t, neighbors, second)
}

func TestRunRetriesPendingReindexMemories(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vx, err := vectorindex.Open(dir, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vx.Close() })

	emb := embedder.New(16, "query: ", "passage: ", 4)
	t.Cleanup(emb.Close)

	id, err := s.PutMemory(store.Draft{Category: store.CategoryFact, Content: "the build uses go workspaces"})
	require.NoError(t, err)
	require.NoError(t, s.MarkPendingReindex(id, true))

	lx := lexical.New(1.5, 0.75)
	ge := graphengine.New()

	require.NoError(t, Run(context.Background(), s, emb, lx, vx, ge, false, noopLogger()))

	m, err := s.GetMemory(id)
	require.NoError(t, err)
	require.False(t, m.PendingReindex)
}

func TestRunForceReindexReembedsEveryMemoryNotJustPending(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vx, err := vectorindex.Open(dir, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vx.Close() })

	emb := embedder.New(16, "query: ", "passage: ", 4)
	t.Cleanup(emb.Close)

	id, err := s.PutMemory(store.Draft{Category: store.CategoryFact, Content: "not flagged pending, but the shard was wiped"})
	require.NoError(t, err)

	lx := lexical.New(1.5, 0.75)
	ge := graphengine.New()

	require.NoError(t, Run(context.Background(), s, emb, lx, vx, ge, true, noopLogger()))

	vec, err := vx.Get(id)
	require.NoError(t, err)
	require.NotEmpty(t, vec)
}
