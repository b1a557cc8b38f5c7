// Package bootstrap rebuilds the in-memory indexes — lexical BM25 and the
// adjacency graph — from Store's persisted state at startup. Store and the
// vector shard are durable across restarts; lexical.Index and
// graphengine.Engine are not, so every process boot replays memories and
// links into them before serving any request.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

// Run repopulates lx and ge from s, and retries any memory left marked
// pending-reindex against vx (typically left over from an embedding failure
// in a prior process). When forceReindex is true — the vector shard was
// wiped and rebuilt empty because the configured embedding dimension no
// longer matched it (vectorindex.Index.Rebuilt) — every memory is
// re-embedded, not just ones already flagged pending-reindex, since the
// entire shard lost its content rather than a single write failing.
func Run(ctx context.Context, s *store.Store, e *embedder.Embedder, lx *lexical.Index,
	vx *vectorindex.Index, ge *graphengine.Engine, forceReindex bool, log *slog.Logger) error {
	memories, err := s.IterMemories(store.Filter{})
	if err != nil {
		return err
	}

	reindexed := 0
	for _, m := range memories {
		lx.Add(lexical.Doc{
			ID: m.ID, Content: m.Content, Rationale: m.Rationale,
			Context: m.Context, Tags: m.Tags, FilePath: m.FilePath,
		})
		if !m.PendingReindex && !forceReindex {
			continue
		}
		vec, err := e.EncodeDocument(ctx, m.Content)
		if err != nil {
			log.Warn("bootstrap: still unable to embed pending memory", "id", m.ID, "error", err)
			continue
		}
		if err := vx.Add(m.ID, vec); err != nil {
			log.Warn("bootstrap: still unable to index pending memory", "id", m.ID, "error", err)
			continue
		}
		reindexed++
		if m.PendingReindex {
			if err := s.MarkPendingReindex(m.ID, false); err != nil {
				return err
			}
		}
	}
	if forceReindex {
		log.Info("bootstrap: vector shard was rebuilt, forced full reindex", "memories_reindexed", reindexed)
	}

	links, err := s.AllLinks()
	if err != nil {
		return err
	}
	ge.Rebuild(links)

	log.Info("bootstrap complete", "memories", len(memories), "links", len(links))
	return nil
}
