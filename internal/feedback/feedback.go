// Package feedback implements the outcome loop from spec.md §4.8: EWMA
// importance updates, fact promotion after repeated successes, surprise
// scoring at insertion time, pruning, and duplicate cleanup.
package feedback

import (
	"context"
	"sort"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

// Engine applies the feedback loop over a Store, using the vector index for
// surprise scoring and duplicate detection.
type Engine struct {
	store  *store.Store
	vector *vectorindex.Index
	cfg    config.FeedbackConfig
}

// New constructs a feedback Engine.
func New(s *store.Store, vx *vectorindex.Index, cfg config.FeedbackConfig) *Engine {
	return &Engine{store: s, vector: vx, cfg: cfg}
}

// RecordOutcome writes the outcome, applies the EWMA importance update, and
// promotes a learning to a fact after fact_promotion_threshold successes.
func (e *Engine) RecordOutcome(id int64, worked bool, text string) error {
	if err := e.store.RecordOutcome(id, worked, text); err != nil {
		return err
	}

	m, err := e.store.GetMemory(id)
	if err != nil {
		return err
	}

	signal := 0.2
	if worked {
		signal = 1.0
	}
	newImportance := 0.7*m.ImportanceScore + 0.3*signal
	if err := e.store.SetImportance(id, newImportance); err != nil {
		return err
	}

	if worked && m.Category == store.CategoryLearning {
		count, err := e.store.IncrementSuccessCounter(m.Content)
		if err != nil {
			return err
		}
		if count >= e.cfg.FactPromotionThreshold {
			sourceID := id
			learnings, err := e.store.IterMemories(store.Filter{Categories: []store.Category{store.CategoryLearning}})
			if err != nil {
				return err
			}
			for _, l := range learnings {
				if l.Content == m.Content && l.ID < sourceID {
					sourceID = l.ID
				}
			}
			if _, err := e.store.PromoteFact(m.Content, m.Content, sourceID); err != nil {
				if errs.KindOf(err) != errs.Conflict {
					return err
				}
			}
		}
	}
	return nil
}

// ComputeSurprise returns 1 − max(cosine similarity to the k nearest
// existing vectors), per spec.md §9's resolution of the surprise aggregate
// as `max`. Call before the new vector is added to the index, so it is not
// compared against itself.
func ComputeSurprise(ctx context.Context, vx *vectorindex.Index, v embedder.Vec, k int) (float64, error) {
	results, err := vx.Search(v, k)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 1.0, nil
	}
	maxCosine := -1.0
	for _, r := range results {
		cosine := 1 - r.Distance*r.Distance/2
		if cosine > maxCosine {
			maxCosine = cosine
		}
	}
	surprise := 1 - maxCosine
	if surprise < 0 {
		surprise = 0
	}
	if surprise > 1 {
		surprise = 1
	}
	return surprise, nil
}

// PruneCandidate is a memory eligible for pruning, with the reason it matched.
type PruneCandidate struct {
	Memory *store.Memory
	Reason string
}

// Prune identifies (and, unless dryRun, deletes) memories matching spec.md
// §4.8's prune predicate: archived OR (non-pinned AND old AND low-importance
// AND decision/learning AND rarely recalled). Pinned memories are never
// candidates regardless of age or importance (spec.md §8 property 8).
func (e *Engine) Prune(olderThanDays int, dryRun bool) ([]PruneCandidate, error) {
	all, err := e.store.IterMemories(store.Filter{})
	if err != nil {
		return nil, err
	}
	archivedTrue := true
	archived, err := e.store.IterMemories(store.Filter{Archived: &archivedTrue})
	if err != nil {
		return nil, err
	}
	all = append(all, archived...)

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	seen := map[int64]bool{}
	var candidates []PruneCandidate
	for _, m := range all {
		if seen[m.ID] || m.Pinned {
			continue
		}
		seen[m.ID] = true

		if m.Archived {
			candidates = append(candidates, PruneCandidate{Memory: m, Reason: "archived"})
			continue
		}
		if m.TransactionTime.Before(cutoff) &&
			m.ImportanceScore < e.cfg.PruneImportanceFloor &&
			(m.Category == store.CategoryDecision || m.Category == store.CategoryLearning) &&
			m.RecallCount < int64(e.cfg.PruneMinRecallCount) {
			candidates = append(candidates, PruneCandidate{Memory: m, Reason: "stale and low-importance"})
		}
	}

	if !dryRun {
		for _, c := range candidates {
			if err := e.store.DeleteMemory(c.Memory.ID); err != nil {
				return nil, err
			}
			if e.vector != nil {
				_ = e.vector.Remove(c.Memory.ID)
			}
		}
	}
	return candidates, nil
}

// DuplicatePair is a pair of memories flagged as duplicates.
type DuplicatePair struct {
	Keep    *store.Memory
	Removed *store.Memory
}

// Cleanup finds duplicate memories by combined Jaccard(tags)+cosine(vector)
// similarity restricted to a shared file_path, keeping the higher
// importance_score and merging recall_count into the survivor.
func (e *Engine) Cleanup(dryRun bool) ([]DuplicatePair, error) {
	all, err := e.store.IterMemories(store.Filter{})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	removed := map[int64]bool{}
	var pairs []DuplicatePair

	for i := 0; i < len(all); i++ {
		if removed[all[i].ID] {
			continue
		}
		for j := i + 1; j < len(all); j++ {
			if removed[all[j].ID] || all[i].FilePath == "" || all[i].FilePath != all[j].FilePath {
				continue
			}
			if jaccard(all[i].Tags, all[j].Tags) < e.cfg.DuplicateJaccardMin {
				continue
			}
			cosine, err := e.vectorCosine(all[i].ID, all[j].ID)
			if err != nil || cosine < e.cfg.DuplicateCosineMin {
				continue
			}

			keep, drop := all[i], all[j]
			if drop.ImportanceScore > keep.ImportanceScore {
				keep, drop = drop, keep
			}
			pairs = append(pairs, DuplicatePair{Keep: keep, Removed: drop})
			removed[drop.ID] = true

			if !dryRun {
				if err := e.store.MergeRecallCount(keep.ID, drop.RecallCount, drop.LastRecalledAt); err != nil {
					return nil, err
				}
				if err := e.store.DeleteMemory(drop.ID); err != nil {
					return nil, err
				}
				if e.vector != nil {
					_ = e.vector.Remove(drop.ID)
				}
			}
			if drop.ID == all[i].ID {
				break
			}
		}
	}
	return pairs, nil
}

func (e *Engine) vectorCosine(a, b int64) (float64, error) {
	if e.vector == nil {
		return 0, errs.New(errs.RetrievalFailure, "vector index unavailable for duplicate detection")
	}
	va, err := e.vector.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := e.vector.Get(b)
	if err != nil {
		return 0, err
	}
	return embedder.Cosine(va, vb), nil
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	union := len(setB)
	for t := range setA {
		if setB[t] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
