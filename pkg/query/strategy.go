package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/brainydb/brainy/pkg/embed"
	"github.com/brainydb/brainy/pkg/index/hnsw"
	"github.com/brainydb/brainy/pkg/metadata"
	"github.com/brainydb/brainy/pkg/types"
)

// VectorIndex is the subset of hnsw.HNSW the vector strategy depends on;
// an engine composing multiple shards satisfies it by fanning a Search
// out to every local shard and merging before returning.
type VectorIndex interface {
	Search(query []float32, k int, filter hnsw.Filter) ([]hnsw.Match, error)
	Dimension() int
}

// GraphStore is the subset of storage.Store the graph strategy walks.
type GraphStore interface {
	GetNoun(id string) (*types.Noun, error)
	GetVerbsBySource(nounID string) ([]*types.Verb, error)
	GetVerbsByTarget(nounID string) ([]*types.Verb, error)
}

// vectorScore turns an HNSW distance into a [0,1]-ish similarity; smaller
// distances (closer vectors) map to scores nearer 1 regardless of which
// DistanceFunction produced them.
func vectorScore(distance float32) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1.0 / (1.0 + float64(distance))
}

// graphScore implements spec.md §4.7's s_g = 1/(1+d) decay.
func graphScore(depth int) float64 {
	return 1.0 / (1.0 + float64(depth))
}

// VectorStrategy answers `like` queries, embedding free text through an
// embed.Embedder when Like is a string rather than a vector.
type VectorStrategy struct {
	Index    VectorIndex
	Embedder embed.Embedder
	Store    GraphStore
}

func (s *VectorStrategy) resolveVector(ctx context.Context, like any) ([]float32, error) {
	switch v := like.(type) {
	case types.Vector:
		return v, nil
	case []float32:
		return v, nil
	case string:
		if s.Embedder == nil {
			return nil, fmt.Errorf("query: vector mode requires an embedder for free-text queries")
		}
		vecs, err := s.Embedder.Embed(ctx, []string{v})
		if err != nil {
			return nil, fmt.Errorf("query: embed: %w", err)
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("query: embedder returned no vectors")
		}
		return vecs[0], nil
	default:
		return nil, fmt.Errorf("query: like must be a string or vector, got %T", like)
	}
}

// Run executes the vector strategy, applying an optional post-filter by
// Where and dropping tombstoned nouns unless IncludeDeleted is set.
func (s *VectorStrategy) Run(ctx context.Context, req Request) ([]Match, error) {
	if req.Like == nil {
		return nil, nil
	}
	vec, err := s.resolveVector(ctx, req.Like)
	if err != nil {
		return nil, err
	}
	// Queries are normalized the same way inserts are, so cosine scores
	// stay correct for callers that pass a slightly off-unit vector. The
	// caller's slice is never scaled in place.
	if !hnsw.IsUnitNorm(vec, 1e-4) {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		vec = hnsw.Normalize(cp)
	}
	k := req.Limit + req.Offset
	if k <= 0 {
		k = 10
	}

	var filter hnsw.Filter
	if req.Where != nil || !req.IncludeDeleted {
		filter = func(id string) bool {
			n, err := s.Store.GetNoun(id)
			if err != nil || n == nil {
				return false
			}
			if !req.IncludeDeleted && n.Tombstone {
				return false
			}
			if req.Where != nil {
				ok, err := req.Where.Matches(n.Metadata)
				if err != nil || !ok {
					return false
				}
			}
			return true
		}
	}

	matches, err := s.Index.Search(vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("query: vector search: %w", err)
	}
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		out = append(out, Match{ID: m.ID, VectorScore: vectorScore(m.Distance)})
	}
	return out, nil
}

// MetadataStrategy answers `where` queries against the inverted index,
// narrowing with the first indexable leaf it finds and confirming every
// candidate against the full predicate tree (indexable leaves are
// eq/ne/gt/gte/lt/lte; contains/startsWith/endsWith and the boolean
// combinators only run as a full-record check).
type MetadataStrategy struct {
	Index *metadata.Index
	Store GraphStore
}

func (s *MetadataStrategy) Run(ctx context.Context, req Request) ([]Match, error) {
	if req.Where == nil {
		return nil, nil
	}
	candidates := s.candidates(*req.Where)
	out := make([]Match, 0, len(candidates))
	for _, id := range candidates {
		n, err := s.Store.GetNoun(id)
		if err != nil || n == nil {
			continue
		}
		if !req.IncludeDeleted && n.Tombstone {
			continue
		}
		ok, err := req.Where.Matches(n.Metadata)
		if err != nil || !ok {
			continue
		}
		out = append(out, Match{ID: id, MetadataScore: 1})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// candidates narrows the search space using the first indexable leaf
// found by a depth-first walk of the predicate tree; and/or/not nodes
// with no indexable leaf anywhere fall back to every value ever indexed
// for any field seen in the tree (a coarse but sound superset).
func (s *MetadataStrategy) candidates(p metadata.Predicate) []string {
	if leaf, ok := firstIndexableLeaf(p); ok {
		value := fmt.Sprint(leaf.Value)
		return s.Index.GetIdsForFilter(leaf.Field, leaf.Op, value)
	}
	seen := make(map[string]struct{})
	for _, field := range fieldsIn(p) {
		for _, value := range s.Index.GetFilterValues(field) {
			for _, id := range s.Index.GetIdsForFilter(field, metadata.OpEq, value) {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func firstIndexableLeaf(p metadata.Predicate) (metadata.Predicate, bool) {
	switch p.Op {
	case metadata.OpEq, metadata.OpNe, metadata.OpGt, metadata.OpGte, metadata.OpLt, metadata.OpLte:
		return p, true
	case metadata.OpAnd, metadata.OpOr, metadata.OpNot:
		for _, c := range p.Children {
			if leaf, ok := firstIndexableLeaf(c); ok {
				return leaf, true
			}
		}
	}
	return metadata.Predicate{}, false
}

func fieldsIn(p metadata.Predicate) []string {
	if p.Field != "" {
		return []string{p.Field}
	}
	var out []string
	for _, c := range p.Children {
		out = append(out, fieldsIn(c)...)
	}
	return out
}

// GraphStrategy answers `connected` queries with a breadth-first walk
// from From (or backwards from To), optionally restricted to one verb
// type, up to Depth hops.
type GraphStrategy struct {
	Store GraphStore
}

func (s *GraphStrategy) Run(ctx context.Context, req Request) ([]Match, error) {
	c := req.Connected
	if c == nil || (c.From == "" && c.To == "") {
		return nil, nil
	}
	maxDepth := c.Depth
	if req.MaxDepth > 0 && (maxDepth <= 0 || maxDepth > req.MaxDepth) {
		maxDepth = req.MaxDepth
	}
	if maxDepth <= 0 {
		maxDepth = 1
	}

	start := c.From
	forward := true
	if start == "" {
		start = c.To
		forward = false
	}

	visited := map[string]int{start: 0}
	order := []Match{}
	frontier := []string{start}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := s.neighbors(id, c.Via, forward)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if _, ok := visited[nb]; ok {
					continue
				}
				visited[nb] = depth + 1
				next = append(next, nb)
			}
		}
		frontier = next
	}

	for id, d := range visited {
		if id == start {
			continue
		}
		if !req.IncludeDeleted {
			n, err := s.Store.GetNoun(id)
			if err != nil || n == nil || n.Tombstone {
				continue
			}
		}
		order = append(order, Match{ID: id, GraphScore: graphScore(d), GraphDepth: d})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].GraphDepth != order[j].GraphDepth {
			return order[i].GraphDepth < order[j].GraphDepth
		}
		return order[i].ID < order[j].ID
	})
	return order, nil
}

func (s *GraphStrategy) neighbors(id string, via types.VerbType, forward bool) ([]string, error) {
	var verbs []*types.Verb
	var err error
	if forward {
		verbs, err = s.Store.GetVerbsBySource(id)
	} else {
		verbs, err = s.Store.GetVerbsByTarget(id)
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(verbs))
	for _, v := range verbs {
		if via != "" && v.Type != via {
			continue
		}
		if v.Tombstone {
			continue
		}
		if forward {
			out = append(out, v.TargetID)
		} else {
			out = append(out, v.SourceID)
		}
	}
	return out, nil
}
