// Package dream implements the idle-time dream pass from spec.md §5: when
// the request queue has been quiet for dream_idle_timeout, re-evaluate a
// bounded number of stale worked=false decisions against the current
// retriever and persist any revised guidance as a tagged learning memory.
package dream

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/retriever"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

// dreamTag marks memories this pass writes, distinguishing them from
// ordinary operator-authored learnings.
const dreamTag = "dream"

// Engine re-evaluates failed decisions during idle periods.
type Engine struct {
	store     *store.Store
	retriever *retriever.Retriever
	embedder  *embedder.Embedder
	lexical   *lexical.Index
	vector    *vectorindex.Index
	cfg       config.DreamConfig
	log       *slog.Logger
}

// New constructs a dream Engine over the engine's shared components.
func New(s *store.Store, rt *retriever.Retriever, e *embedder.Embedder, lx *lexical.Index,
	vx *vectorindex.Index, cfg config.DreamConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, retriever: rt, embedder: e, lexical: lx, vector: vx, cfg: cfg, log: log}
}

func (e *Engine) Name() string { return "dream_pass" }

// Run re-evaluates up to MaxDecisionsPerSession stale failed decisions,
// oldest first, checking ctx between each one and stopping once it is
// cancelled. Run does not watch for incoming requests itself; a request
// arriving mid-pass does not interrupt it.
func (e *Engine) Run(ctx context.Context) error {
	candidates, err := e.staleFailedDecisions()
	if err != nil {
		return err
	}

	count := 0
	for _, m := range candidates {
		if count >= e.cfg.MaxDecisionsPerSession {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		count++

		revised, err := e.revise(ctx, m)
		if err != nil {
			e.log.Warn("dream pass failed to revise decision", "id", m.ID, "error", err)
			continue
		}
		if revised == "" {
			continue
		}
		if err := e.persist(ctx, m, revised); err != nil {
			e.log.Warn("dream pass failed to persist revision", "id", m.ID, "error", err)
		}
	}
	return nil
}

func (e *Engine) staleFailedDecisions() ([]*store.Memory, error) {
	cutoff := e.cfg.MinDecisionAgeHours
	all, err := e.store.IterMemories(store.Filter{Categories: []store.Category{store.CategoryDecision}})
	if err != nil {
		return nil, err
	}

	var candidates []*store.Memory
	for _, m := range all {
		if m.Outcome == nil || m.Outcome.Worked {
			continue
		}
		ageHours := int(time.Since(m.Outcome.RecordedAt).Hours())
		if ageHours < cutoff {
			continue
		}
		candidates = append(candidates, m)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Outcome.RecordedAt.Before(candidates[j].Outcome.RecordedAt)
	})
	return candidates, nil
}

// revise retrieves current guidance on the decision's own content and, if a
// higher-importance decision or pattern now covers the same ground,
// composes a short note pointing to it. Returns "" when nothing better has
// since emerged, so Run skips persisting a no-op revision.
func (e *Engine) revise(ctx context.Context, m *store.Memory) (string, error) {
	items, err := e.retriever.Retrieve(ctx, m.Content, store.Filter{}, "", 5)
	if err != nil {
		return "", err
	}

	var best *store.Memory
	for _, item := range items {
		if item.Memory.ID == m.ID {
			continue
		}
		if item.Memory.Category != store.CategoryDecision && item.Memory.Category != store.CategoryPattern {
			continue
		}
		if item.Memory.ImportanceScore <= m.ImportanceScore {
			continue
		}
		if best == nil || item.Memory.ImportanceScore > best.ImportanceScore {
			best = item.Memory
		}
	}
	if best == nil {
		return "", nil
	}
	return fmt.Sprintf("Revisiting decision %q, which did not work out: current guidance favors %q (id %d) instead.",
		m.Content, best.Content, best.ID), nil
}

func (e *Engine) persist(ctx context.Context, source *store.Memory, revised string) error {
	id, err := e.store.PutMemory(store.Draft{
		Category: store.CategoryLearning,
		Content:  revised,
		Tags:     []string{dreamTag},
	})
	if err != nil {
		return err
	}

	if err := e.store.PutLink(store.Link{Source: source.ID, Target: id, Relationship: store.RelLedTo}); err != nil {
		e.log.Warn("dream pass failed to link revision to its source decision", "source", source.ID, "revision", id, "error", err)
	}

	e.lexical.Add(lexical.Doc{ID: id, Content: revised, Tags: []string{dreamTag}})
	vec, err := e.embedder.EncodeDocument(ctx, revised)
	if err != nil {
		return e.store.MarkPendingReindex(id, true)
	}
	return e.vector.Add(id, vec)
}
