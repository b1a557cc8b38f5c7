// Package graphengine maintains the memory-to-memory relationship graph
// (spec.md §4.6): adjacency, shortest causal chains, subgraph expansion,
// entity evolution, and Leiden-style community detection. Per spec.md §9's
// redesign note, memories never hold references to each other — the graph
// is a separate adjacency index keyed by id, built on dominikbraun/graph.
package graphengine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dominikbraun/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
)

func int64Hash(id int64) int64 { return id }

// Edge mirrors a store.Link for adjacency purposes.
type Edge struct {
	Source       int64
	Target       int64
	Relationship store.Relationship
	Weight       float64
}

func relationshipWeight(r store.Relationship) float64 {
	switch r {
	case store.RelSupersedes, store.RelConflictsWith:
		return 2.0
	default:
		return 1.0
	}
}

// Engine is the in-memory adjacency index, rebuilt from Store links.
type Engine struct {
	mu sync.RWMutex
	g  graph.Graph[int64, int64]
	// edgesByPair keeps relationship labels since dominikbraun/graph only
	// tracks one edge per ordered vertex pair.
	edgesByPair map[[2]int64][]Edge
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{
		g:           graph.New(int64Hash, graph.Directed()),
		edgesByPair: make(map[[2]int64][]Edge),
	}
}

// Rebuild installs a fresh adjacency index from the full set of links.
func (e *Engine) Rebuild(links []store.Link) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.g = graph.New(int64Hash, graph.Directed())
	e.edgesByPair = make(map[[2]int64][]Edge)

	for _, l := range links {
		e.addVertex(l.Source)
		e.addVertex(l.Target)
		key := [2]int64{l.Source, l.Target}
		e.edgesByPair[key] = append(e.edgesByPair[key], Edge{
			Source: l.Source, Target: l.Target, Relationship: l.Relationship,
			Weight: relationshipWeight(l.Relationship),
		})
		_ = e.g.AddEdge(l.Source, l.Target)
	}
}

func (e *Engine) addVertex(id int64) {
	_ = e.g.AddVertex(id)
}

// Neighbors returns ids reachable within depth hops, optionally filtered by
// relationship, in either direction (the undirected projection).
func (e *Engine) Neighbors(id int64, relationship *store.Relationship, depth int) []int64 {
	if depth < 1 {
		depth = 1
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	visited := map[int64]bool{id: true}
	frontier := []int64{id}
	var out []int64
	for d := 0; d < depth; d++ {
		var next []int64
		for _, cur := range frontier {
			for _, nb := range e.adjacentLocked(cur, relationship) {
				if !visited[nb] {
					visited[nb] = true
					out = append(out, nb)
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) adjacentLocked(id int64, relationship *store.Relationship) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for key, edges := range e.edgesByPair {
		for _, edge := range edges {
			if relationship != nil && edge.Relationship != *relationship {
				continue
			}
			var other int64
			switch {
			case key[0] == id:
				other = key[1]
			case key[1] == id:
				other = key[0]
			default:
				continue
			}
			if !seen[other] {
				seen[other] = true
				out = append(out, other)
			}
		}
	}
	return out
}

// Chain finds the shortest causal path from `from` to `to` within max_depth
// hops via a breadth-first search outward from `from` only (the search does
// not also expand from `to`), breaking ties by (lower max id on path, then
// lower sum of ids) per spec.md §4.6.
func (e *Engine) Chain(from, to int64, maxDepth int) ([]int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if from == to {
		return []int64{from}, nil
	}

	paths := e.allShortestPathsLocked(from, to, maxDepth)
	if len(paths) == 0 {
		return nil, errs.Newf(errs.NotFound, "no causal chain from %d to %d within %d hops", from, to, maxDepth)
	}

	sort.Slice(paths, func(i, j int) bool {
		mi, si := pathStats(paths[i])
		mj, sj := pathStats(paths[j])
		if mi != mj {
			return mi < mj
		}
		return si < sj
	})
	return paths[0], nil
}

func pathStats(path []int64) (maxID, sum int64) {
	for _, id := range path {
		if id > maxID {
			maxID = id
		}
		sum += id
	}
	return
}

// allShortestPathsLocked performs BFS from `from`, collecting every
// shortest path to `to` within maxDepth hops over the undirected projection.
func (e *Engine) allShortestPathsLocked(from, to int64, maxDepth int) [][]int64 {
	type state struct {
		id   int64
		path []int64
	}
	visited := map[int64]int{from: 0}
	queue := []state{{id: from, path: []int64{from}}}
	var found [][]int64
	foundDepth := -1

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if foundDepth != -1 && len(cur.path)-1 > foundDepth {
			continue
		}
		if len(cur.path)-1 >= maxDepth && cur.id != to {
			continue
		}

		for _, nb := range e.adjacentLocked(cur.id, nil) {
			nextDepth := len(cur.path)
			if d, ok := visited[nb]; ok && d < nextDepth {
				continue
			}
			visited[nb] = nextDepth
			nextPath := append(append([]int64{}, cur.path...), nb)
			if nb == to {
				if foundDepth == -1 {
					foundDepth = nextDepth
				}
				if nextDepth == foundDepth {
					found = append(found, nextPath)
				}
				continue
			}
			if nextDepth < maxDepth {
				queue = append(queue, state{id: nb, path: nextPath})
			}
		}
	}
	return found
}

// SubgraphResult is a BFS expansion from a seed set.
type SubgraphResult struct {
	Nodes []int64
	Edges []Edge
}

// Subgraph expands from seedIDs out to depth hops.
func (e *Engine) Subgraph(seedIDs []int64, depth int) SubgraphResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	visited := map[int64]bool{}
	for _, s := range seedIDs {
		visited[s] = true
	}
	frontier := append([]int64{}, seedIDs...)
	for d := 0; d < depth; d++ {
		var next []int64
		for _, cur := range frontier {
			for _, nb := range e.adjacentLocked(cur, nil) {
				if !visited[nb] {
					visited[nb] = true
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}

	var nodes []int64
	for id := range visited {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	var edges []Edge
	for key, es := range e.edgesByPair {
		if visited[key[0]] && visited[key[1]] {
			edges = append(edges, es...)
		}
	}
	return SubgraphResult{Nodes: nodes, Edges: edges}
}

// Evolution orders a set of memories (already filtered by entity name at the
// Store layer) chronologically by valid_time, annotating supersession chain
// membership via each Memory's own SupersededBy field.
func (e *Engine) Evolution(memories []*store.Memory) []*store.Memory {
	out := append([]*store.Memory{}, memories...)
	sort.Slice(out, func(i, j int) bool { return out[i].ValidTime.Before(out[j].ValidTime) })
	return out
}

// allNodeIDsLocked returns every vertex currently known to the adjacency index.
func (e *Engine) allNodeIDsLocked() []int64 {
	seen := map[int64]bool{}
	for key := range e.edgesByPair {
		seen[key[0]] = true
		seen[key[1]] = true
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) buildWeightedGraphLocked(ids []int64) *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for _, id := range ids {
		g.AddNode(simple.Node(id))
	}
	added := map[[2]int64]bool{}
	for key, edges := range e.edgesByPair {
		if added[key] {
			continue
		}
		added[key] = true
		var weight float64
		for _, edge := range edges {
			weight += edge.Weight
		}
		if !g.HasEdgeBetween(key[0], key[1]) {
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(key[0]), simple.Node(key[1]), weight))
		}
	}
	return g
}

func nodeIDs(nodes []graph.Node) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID())
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DetectCommunities runs Louvain-style modularity clustering over the
// adjacency index (the nearest ecosystem analogue to Leiden available here),
// merging any community smaller than minSize into a single miscellaneous
// bucket, and produces a coarser level-1 grouping for hierarchical zoom-out.
func (e *Engine) DetectCommunities(minSize int, resolution float64) []store.Community {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := e.allNodeIDsLocked()
	if len(ids) == 0 {
		return nil
	}

	level0 := e.modularizeLocked(ids, resolution, 0, minSize)
	if len(level0) <= 1 {
		return level0
	}

	coarse := resolution / 2
	if coarse <= 0 {
		coarse = resolution
	}
	level1 := e.modularizeLocked(ids, coarse, 1, minSize)
	for i := range level0 {
		level0[i].ParentID = majorityParent(level0[i], level1)
	}

	return append(level0, level1...)
}

func (e *Engine) modularizeLocked(ids []int64, resolution float64, level int, minSize int) []store.Community {
	g := e.buildWeightedGraphLocked(ids)
	reduced := community.Modularize(g, resolution, nil)
	groups := reduced.Structure()

	var out []store.Community
	var misc []int64
	nextID := int64(level)*100000 + 1
	for _, grp := range groups {
		members := nodeIDs(grp)
		if len(members) < minSize {
			misc = append(misc, members...)
			continue
		}
		out = append(out, store.Community{
			ID: nextID, Level: level, Members: members,
			Summary: fmt.Sprintf("community of %d memories", len(members)),
		})
		nextID++
	}
	if len(misc) > 0 {
		sort.Slice(misc, func(i, j int) bool { return misc[i] < misc[j] })
		out = append(out, store.Community{
			ID: nextID, Level: level, Members: misc, Summary: "miscellaneous",
		})
	}
	return out
}

func majorityParent(child store.Community, candidates []store.Community) *int64 {
	memberSet := make(map[int64]bool, len(child.Members))
	for _, m := range child.Members {
		memberSet[m] = true
	}
	var bestID int64
	bestOverlap := 0
	for _, c := range candidates {
		overlap := 0
		for _, m := range c.Members {
			if memberSet[m] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			bestID = c.ID
		}
	}
	if bestOverlap == 0 {
		return nil
	}
	id := bestID
	return &id
}
