// Package retriever implements the hybrid recall pipeline: complexity
// classification, per-tier candidate assembly across the lexical, vector,
// and graph sources, Reciprocal Rank Fusion, multiplicative boosts, and a
// per-file diversity filter.
package retriever

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

// Complexity classifies a recall query's expected retrieval breadth.
type Complexity string

const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

var graphCuePhrases = []string{"related to", "history of", "why"}

var capitalizedWord = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*\b`)

// ClassifyComplexity implements spec.md §4.5 step 1's heuristic: token
// count, graph-requiring cue phrases, and distinct capitalized entity count.
func ClassifyComplexity(query string) Complexity {
	lower := strings.ToLower(query)
	for _, cue := range graphCuePhrases {
		if strings.Contains(lower, cue) {
			return Complex
		}
	}

	tokens := strings.FieldsFunc(query, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	entities := map[string]bool{}
	for _, m := range capitalizedWord.FindAllString(query, -1) {
		entities[m] = true
	}

	switch {
	case len(entities) >= 2:
		return Complex
	case len(tokens) > 12:
		return Medium
	case len(tokens) > 4:
		return Medium
	default:
		return Simple
	}
}

// ScoreBreakdown is the per-item explanation attached to a retrieval result.
type ScoreBreakdown struct {
	LexicalRank  int // 0 = absent from this source
	VectorRank   int
	GraphRank    int
	FusedScore   float64
	BoostSummary []string
}

// Item is one ranked retrieval result.
type Item struct {
	Memory *store.Memory
	Score  ScoreBreakdown
}

// Retriever wires the lexical, vector, and graph sources together.
type Retriever struct {
	store    *store.Store
	embedder *embedder.Embedder
	lexical  *lexical.Index
	vector   *vectorindex.Index
	graph    *graphengine.Engine
	cfg      config.RetrievalConfig
	feedback config.FeedbackConfig
	log      *slog.Logger
}

// New constructs a Retriever over the given components.
func New(s *store.Store, e *embedder.Embedder, lx *lexical.Index, vx *vectorindex.Index,
	ge *graphengine.Engine, cfg config.RetrievalConfig, fcfg config.FeedbackConfig, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{store: s, embedder: e, lexical: lx, vector: vx, graph: ge, cfg: cfg, feedback: fcfg, log: log}
}

type rankedList map[int64]int // id -> 1-based rank

func rrfScore(k int, lists ...rankedList) map[int64]float64 {
	scores := make(map[int64]float64)
	for _, list := range lists {
		for id, rank := range list {
			scores[id] += 1.0 / float64(k+rank)
		}
	}
	return scores
}

func toRankedList(ids []int64) rankedList {
	rl := make(rankedList, len(ids))
	for i, id := range ids {
		rl[id] = i + 1
	}
	return rl
}

// Retrieve runs the full pipeline and returns ranked results with recall
// side effects applied to returned memories. When the sources work but
// find no candidates it returns an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters store.Filter, requestedComplexity string, limit int) ([]Item, error) {
	complexity := r.resolveComplexity(query, requestedComplexity)

	lexicalList, lexicalErr := r.lexicalCandidates(query)
	if lexicalErr != nil {
		r.log.Warn("lexical candidate retrieval failed", "error", lexicalErr)
	}

	vectorList, queryVec, vectorErr := r.vectorCandidates(ctx, query)
	if vectorErr != nil {
		r.log.Warn("vector candidate retrieval failed", "error", vectorErr)
	}

	lists := []rankedList{}
	if len(lexicalList) > 0 && complexity != Simple {
		lists = append(lists, lexicalList)
	}
	if len(vectorList) > 0 {
		lists = append(lists, vectorList)
	}

	if len(lists) == 0 {
		if vectorErr != nil && (lexicalErr != nil || complexity == Simple) {
			return nil, errs.New(errs.RetrievalFailure, "all retrieval sources failed")
		}
		return nil, nil
	}

	var graphList rankedList
	if complexity == Complex {
		seeds := combinedTopN(lists, 5)
		graphList = r.graphCandidates(seeds)
		if len(graphList) > 0 {
			lists = append(lists, graphList)
		}

		communityList := r.communityCandidates(queryVec)
		if len(communityList) > 0 {
			lists = append(lists, communityList)
		}
	}

	fused := rrfScore(r.cfg.RRFK, lists...)
	if len(fused) == 0 {
		return nil, errs.New(errs.RetrievalFailure, "no candidates survived fusion")
	}

	items := r.materialize(fused, lexicalList, vectorList, graphList, filters)
	r.applyBoosts(items)

	sort.Slice(items, func(i, j int) bool { return items[i].Score.FusedScore > items[j].Score.FusedScore })

	items = diversityFilter(items, r.cfg.MaxPerFile)
	items = truncate(items, complexity, limit, r.cfg)

	r.recordRecall(items)
	return items, nil
}

func (r *Retriever) resolveComplexity(query, requested string) Complexity {
	if !r.cfg.AutoZoomEnabled {
		return Medium
	}
	classified := ClassifyComplexity(query)
	if r.cfg.ShadowMode {
		r.log.Info("shadow-mode complexity classification", "query", query, "classified", classified)
		return Medium
	}
	switch Complexity(requested) {
	case Simple, Medium, Complex:
		return Complexity(requested)
	default:
		return classified
	}
}

func (r *Retriever) lexicalCandidates(query string) (rankedList, error) {
	if r.lexical == nil {
		return nil, errs.New(errs.RetrievalFailure, "lexical index unavailable")
	}
	results := r.lexical.Search(query, r.cfg.CandidateTopK)
	ids := make([]int64, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	return toRankedList(ids), nil
}

func (r *Retriever) vectorCandidates(ctx context.Context, query string) (rankedList, embedder.Vec, error) {
	if r.vector == nil || r.embedder == nil {
		return nil, nil, errs.New(errs.RetrievalFailure, "vector index unavailable")
	}
	vec, err := r.embedder.EncodeQuery(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	results, err := r.vector.Search(vec, r.cfg.CandidateTopK)
	if err != nil {
		return nil, vec, err
	}
	ids := make([]int64, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	return toRankedList(ids), vec, nil
}

func combinedTopN(lists []rankedList, n int) []int64 {
	fused := rrfScore(60, lists...)
	ids := make([]int64, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if fused[ids[i]] != fused[ids[j]] {
			return fused[ids[i]] > fused[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func (r *Retriever) graphCandidates(seeds []int64) rankedList {
	if r.graph == nil {
		return nil
	}
	rl := make(rankedList)
	rank := 1
	seen := map[int64]bool{}
	for _, s := range seeds {
		seen[s] = true
	}
	for _, s := range seeds {
		for _, nb := range r.graph.Neighbors(s, nil, 2) {
			if seen[nb] {
				continue
			}
			seen[nb] = true
			if _, ok := rl[nb]; !ok {
				rl[nb] = rank
				rank++
			}
		}
	}
	return rl
}

func (r *Retriever) communityCandidates(queryVec embedder.Vec) rankedList {
	if r.store == nil || r.embedder == nil || queryVec == nil {
		return nil
	}
	communities, err := r.store.AllCommunities()
	if err != nil || len(communities) == 0 {
		return nil
	}

	type scoredCommunity struct {
		community store.Community
		sim       float64
	}
	var scored []scoredCommunity
	for _, c := range communities {
		if c.Summary == "" {
			continue
		}
		summaryVec, err := r.embedder.EncodeDocument(context.Background(), c.Summary)
		if err != nil {
			continue
		}
		scored = append(scored, scoredCommunity{community: c, sim: embedder.Cosine(queryVec, summaryVec)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].sim > scored[j].sim })

	rl := make(rankedList)
	rank := 1
	for _, sc := range scored {
		if sc.sim < 0.3 {
			break
		}
		for _, id := range sc.community.Members {
			if _, ok := rl[id]; !ok {
				rl[id] = rank
			}
		}
		rank++
	}
	return rl
}

func (r *Retriever) materialize(fused map[int64]float64, lexicalList, vectorList, graphList rankedList, filters store.Filter) []Item {
	var items []Item
	for id, score := range fused {
		m, err := r.store.GetMemory(id)
		if err != nil {
			continue
		}
		if !matchesFilter(m, filters) {
			continue
		}
		items = append(items, Item{
			Memory: m,
			Score: ScoreBreakdown{
				LexicalRank: lexicalList[id],
				VectorRank:  vectorList[id],
				GraphRank:   graphList[id],
				FusedScore:  score,
			},
		})
	}
	return items
}

func matchesFilter(m *store.Memory, f store.Filter) bool {
	if f.Archived != nil {
		if m.Archived != *f.Archived {
			return false
		}
	} else if m.Archived {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if m.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.FilePrefix != "" && !strings.HasPrefix(m.FilePath, f.FilePrefix) {
		return false
	}
	return true
}

func (r *Retriever) applyBoosts(items []Item) {
	now := time.Now().UTC()
	halfLife := r.feedback.DecisionHalfLifeDays
	if halfLife <= 0 {
		halfLife = 30
	}
	for i := range items {
		m := items[i].Memory
		breakdown := &items[i].Score
		score := breakdown.FusedScore

		if m.Pinned {
			score *= 1.3
			breakdown.BoostSummary = append(breakdown.BoostSummary, "pinned x1.3")
		}
		if m.Outcome != nil && !m.Outcome.Worked {
			score *= 1.5
			breakdown.BoostSummary = append(breakdown.BoostSummary, "worked=false x1.5")
		}
		if m.SurpriseScore >= 0.7 {
			score *= 1.2
			breakdown.BoostSummary = append(breakdown.BoostSummary, "surprise>=0.7 x1.2")
		}
		if m.Category == store.CategoryFact {
			score *= 1.4
			breakdown.BoostSummary = append(breakdown.BoostSummary, "fact-promoted x1.4")
		}
		if m.Category == store.CategoryDecision || m.Category == store.CategoryLearning {
			ageDays := now.Sub(m.ValidTime).Hours() / 24
			decay := math.Pow(0.5, ageDays/halfLife)
			score *= decay
			breakdown.BoostSummary = append(breakdown.BoostSummary, "recency-decay")
		}

		breakdown.FusedScore = score
	}
}

func diversityFilter(items []Item, maxPerFile int) []Item {
	if maxPerFile <= 0 {
		maxPerFile = 3
	}
	counts := map[string]int{}
	var out []Item
	for _, it := range items {
		key := it.Memory.FilePath
		if key == "" {
			out = append(out, it)
			continue
		}
		if counts[key] >= maxPerFile {
			continue
		}
		counts[key]++
		out = append(out, it)
	}
	return out
}

func truncate(items []Item, complexity Complexity, limit int, cfg config.RetrievalConfig) []Item {
	effectiveLimit := limit
	if effectiveLimit <= 0 {
		switch complexity {
		case Simple:
			effectiveLimit = cfg.SimpleLimit
		case Complex:
			effectiveLimit = cfg.ComplexLimit
		default:
			effectiveLimit = cfg.MediumLimit
		}
	}
	if effectiveLimit > 0 && len(items) > effectiveLimit {
		items = items[:effectiveLimit]
	}
	return items
}

func (r *Retriever) recordRecall(items []Item) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.Memory.ID
	}
	if len(ids) == 0 {
		return
	}
	if err := r.store.Recall(ids); err != nil {
		r.log.Warn("recording recall side effect failed", "error", err)
	}
}
