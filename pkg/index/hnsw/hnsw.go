// Package hnsw implements a Hierarchical Navigable Small World graph
// index supporting Insert, Delete, and Search with a configurable
// distance kernel.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/types"
)

// Config fixes the parameters of an HNSW index at creation time; all of
// them feed the persistence header, so changing them requires rebuilding
// the index rather than mutating it in place.
type Config struct {
	// Dimension is the fixed vector length. Every inserted and queried
	// vector must match it exactly.
	Dimension int

	// Distance selects the kernel used to compare vectors.
	Distance types.DistanceFunction

	// M is the maximum number of connections per node per layer, except
	// layer 0 which allows 2*M. Default 16.
	M int

	// EfConstruction is the candidate-list size used while building the
	// graph. Must be >= M. Default 200.
	EfConstruction int

	// EfSearch is the default candidate-list size at query time.
	// SetEfSearch overrides it per index instance. Default 50;
	// Search widens it to k when k is larger.
	EfSearch int

	// MaxElements bounds the index size; 0 means unbounded.
	MaxElements int
}

func (c *Config) setDefaults() {
	if c.M < 2 {
		c.M = 16
	}
	if c.EfConstruction < c.M {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 50
	}
}

func (c *Config) maxConns(layer int) int {
	if layer == 0 {
		return c.M * 2
	}
	return c.M
}

// Filter is an optional predicate threaded through Search; a result is
// kept only if Filter(id) returns true. A nil Filter keeps everything.
type Filter func(id string) bool

// distItem pairs an internal node id with its distance to some query.
type distItem struct {
	id   uint32
	dist float32
}

type minDistHeap []distItem

func (h minDistHeap) Len() int           { return len(h) }
func (h minDistHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h minDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minDistHeap) Push(x any)        { *h = append(*h, x.(distItem)) }
func (h *minDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type maxDistHeap []distItem

func (h maxDistHeap) Len() int           { return len(h) }
func (h maxDistHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x any)        { *h = append(*h, x.(distItem)) }
func (h *maxDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// node is a single vector in the graph.
type node struct {
	id      string
	vector  []float32
	level   int
	friends [][]uint32 // friends[layer] = neighbor internal ids at that layer
}

// Match is one search result.
type Match struct {
	ID       string
	Distance float32
}

// HNSW is a concurrency-safe HNSW index. All methods acquire an internal
// lock; callers do not need to coordinate access themselves.
type HNSW struct {
	mu       sync.RWMutex
	cfg      Config
	dist     DistanceFunc
	nodes    []*node
	idMap    map[string]uint32
	entryID  int32
	maxLevel int
	count    int
	free     []uint32
	levelMul float64
}

// New creates an empty index. Returns InvalidArgument if cfg.Dimension is
// not positive.
func New(cfg Config) (*HNSW, error) {
	if cfg.Dimension <= 0 {
		return nil, brainyerr.New(brainyerr.InvalidArgument, "hnsw: dimension must be positive")
	}
	cfg.setDefaults()
	return &HNSW{
		cfg:      cfg,
		dist:     kernelFor(cfg.Distance),
		idMap:    make(map[string]uint32),
		entryID:  -1,
		levelMul: 1.0 / math.Log(float64(cfg.M)),
	}, nil
}

// SetEfSearch adjusts the search-time candidate list size at runtime.
func (h *HNSW) SetEfSearch(ef int) {
	h.mu.Lock()
	h.cfg.EfSearch = ef
	h.mu.Unlock()
}

// Len returns the number of live vectors in the index.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dimension returns the index's fixed vector dimension.
func (h *HNSW) Dimension() int { return h.cfg.Dimension }

func (h *HNSW) validate(vector []float32) error {
	if len(vector) != h.cfg.Dimension {
		return brainyerr.Newf(brainyerr.InvalidArgument, "hnsw: dimension mismatch: got %d, want %d", len(vector), h.cfg.Dimension)
	}
	if hasNaNOrInf(vector) {
		return brainyerr.New(brainyerr.InvalidArgument, "hnsw: vector contains NaN or infinite value")
	}
	return nil
}

// Insert adds or replaces the vector for id. Duplicate ids are treated as
// an update: the previous node is removed and a fresh one is linked in
// its place. Level is drawn from an exponential distribution with
// parameter mL = 1/ln(M); layer 0 allows 2*M neighbors, higher layers
// allow M, chosen by the heuristic-neighbor-selection rule that rejects a
// candidate already dominated by a selected neighbor.
func (h *HNSW) Insert(id string, vector []float32) error {
	if err := h.validate(vector); err != nil {
		return err
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.MaxElements > 0 && h.count >= h.cfg.MaxElements {
		if _, exists := h.idMap[id]; !exists {
			return brainyerr.Newf(brainyerr.InvalidArgument, "hnsw: index at capacity (%d elements)", h.cfg.MaxElements)
		}
	}

	if oldIdx, ok := h.idMap[id]; ok {
		h.removeLocked(oldIdx)
	}

	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		idx = uint32(len(h.nodes))
		h.nodes = append(h.nodes, nil)
	}

	level := h.randomLevel()
	nd := &node{
		id:      id,
		vector:  vec,
		level:   level,
		friends: make([][]uint32, level+1),
	}
	h.nodes[idx] = nd
	h.idMap[id] = idx
	h.count++

	if h.entryID < 0 {
		h.entryID = int32(idx)
		h.maxLevel = level
		return nil
	}

	cur := uint32(h.entryID)
	curDist := h.dist(vec, h.nodes[cur].vector)

	for lev := h.maxLevel; lev > level; lev-- {
		changed := true
		for changed {
			changed = false
			curNode := h.nodes[cur]
			if curNode == nil || lev >= len(curNode.friends) {
				break
			}
			for _, fID := range curNode.friends[lev] {
				if h.nodes[fID] == nil {
					continue
				}
				d := h.dist(vec, h.nodes[fID].vector)
				if d < curDist {
					cur = fID
					curDist = d
					changed = true
				}
			}
		}
	}

	topInsert := level
	if topInsert > h.maxLevel {
		topInsert = h.maxLevel
	}

	ep := []uint32{cur}
	for lev := topInsert; lev >= 0; lev-- {
		candidates := h.searchLayer(vec, ep, h.cfg.EfConstruction, lev)

		maxC := h.cfg.maxConns(lev)
		neighbors := h.selectHeuristic(vec, candidates, maxC)
		nd.friends[lev] = neighbors

		for _, nID := range neighbors {
			nn := h.nodes[nID]
			if nn == nil || lev >= len(nn.friends) {
				continue
			}
			nn.friends[lev] = append(nn.friends[lev], idx)
			if len(nn.friends[lev]) > maxC {
				nn.friends[lev] = h.selectHeuristic(nn.vector, nn.friends[lev], maxC)
			}
		}

		ep = candidates
	}

	if level > h.maxLevel {
		h.entryID = int32(idx)
		h.maxLevel = level
	}

	return nil
}

// Search returns up to k results ordered by ascending distance, each
// passing filter (if non-nil). Greedy descent runs from the entry point
// through layers maxLevel..1; layer 0 runs an ef-search beam with a
// candidate min-heap and a result max-heap, terminating once the best
// remaining candidate is farther than the worst kept result.
func (h *HNSW) Search(query []float32, k int, filter Filter) ([]Match, error) {
	if err := h.validate(query); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || k <= 0 {
		return nil, nil
	}

	ef := h.cfg.EfSearch
	if ef < k {
		ef = k
	}
	// Over-fetch when filtering, since a predicate can reject hits that
	// the raw beam search already committed to.
	searchEf := ef
	if filter != nil {
		searchEf = ef * 4
		if searchEf < ef {
			searchEf = ef
		}
	}

	cur := uint32(h.entryID)
	entry := h.nodes[cur]
	if entry == nil {
		return nil, nil
	}
	curDist := h.dist(query, entry.vector)

	for lev := h.maxLevel; lev > 0; lev-- {
		changed := true
		for changed {
			changed = false
			nd := h.nodes[cur]
			if nd == nil || lev >= len(nd.friends) {
				break
			}
			for _, fID := range nd.friends[lev] {
				fn := h.nodes[fID]
				if fn == nil {
					continue
				}
				d := h.dist(query, fn.vector)
				if d < curDist {
					cur = fID
					curDist = d
					changed = true
				}
			}
		}
	}

	candidateIDs := h.searchLayer(query, []uint32{cur}, searchEf, 0)

	type scored struct {
		id   string
		dist float32
	}
	results := make([]scored, 0, len(candidateIDs))
	for _, cID := range candidateIDs {
		nd := h.nodes[cID]
		if nd == nil {
			continue
		}
		if filter != nil && !filter(nd.id) {
			continue
		}
		results = append(results, scored{id: nd.id, dist: h.dist(query, nd.vector)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > k {
		results = results[:k]
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{ID: r.id, Distance: r.dist}
	}
	return matches, nil
}

// Delete removes id from every layer and re-links its former neighbors
// with the same heuristic used on insert, so deletion never degrades
// graph connectivity below what a fresh build would produce. No error if
// id is unknown. If id was the entry point, the highest-level remaining
// node is promoted.
func (h *HNSW) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.idMap[id]
	if !ok {
		return nil
	}
	h.removeLocked(idx)
	return nil
}

func (h *HNSW) randomLevel() int {
	r := max(rand.Float64(), math.SmallestNonzeroFloat64)
	level := int(-math.Log(r) * h.levelMul)
	if level > 31 {
		level = 31
	}
	return level
}

// searchLayer performs a beam search on a single layer from entryPoints,
// returning up to ef internal ids closest to query.
func (h *HNSW) searchLayer(query []float32, entryPoints []uint32, ef int, layer int) []uint32 {
	visited := make(map[uint32]struct{}, ef*2)

	var candidates minDistHeap
	var results maxDistHeap

	for _, ep := range entryPoints {
		nd := h.nodes[ep]
		if nd == nil {
			continue
		}
		visited[ep] = struct{}{}
		d := h.dist(query, nd.vector)
		heap.Push(&candidates, distItem{id: ep, dist: d})
		heap.Push(&results, distItem{id: ep, dist: d})
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(&candidates).(distItem)

		if results.Len() >= ef && closest.dist > results[0].dist {
			break
		}

		nd := h.nodes[closest.id]
		if nd == nil || layer >= len(nd.friends) {
			continue
		}

		for _, fID := range nd.friends[layer] {
			if _, seen := visited[fID]; seen {
				continue
			}
			visited[fID] = struct{}{}

			fn := h.nodes[fID]
			if fn == nil {
				continue
			}

			d := h.dist(query, fn.vector)
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&candidates, distItem{id: fID, dist: d})
				heap.Push(&results, distItem{id: fID, dist: d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]uint32, results.Len())
	for i := range out {
		out[i] = results[i].id
	}
	return out
}

// selectHeuristic implements the diversity rule from the spec: sort
// candidates by distance to query, then greedily accept a candidate only
// if no already-selected neighbor is closer to it than query is. This
// keeps the neighbor set spread out instead of clustering around the
// single closest direction.
func (h *HNSW) selectHeuristic(query []float32, candidates []uint32, maxN int) []uint32 {
	type scored struct {
		id   uint32
		dist float32
	}
	items := make([]scored, 0, len(candidates))
	for _, cID := range candidates {
		nd := h.nodes[cID]
		if nd == nil {
			continue
		}
		items = append(items, scored{id: cID, dist: h.dist(query, nd.vector)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].dist < items[j].dist })

	selected := make([]scored, 0, maxN)
	for _, c := range items {
		if len(selected) >= maxN {
			break
		}
		good := true
		cNode := h.nodes[c.id]
		for _, s := range selected {
			sNode := h.nodes[s.id]
			if sNode == nil || cNode == nil {
				continue
			}
			if h.dist(sNode.vector, cNode.vector) < c.dist {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		}
	}

	// Backfill with the nearest rejected candidates if the diversity
	// rule left us short of maxN, so well-connected layers don't starve.
	if len(selected) < maxN {
		selectedSet := make(map[uint32]struct{}, len(selected))
		for _, s := range selected {
			selectedSet[s.id] = struct{}{}
		}
		for _, c := range items {
			if len(selected) >= maxN {
				break
			}
			if _, ok := selectedSet[c.id]; ok {
				continue
			}
			selected = append(selected, c)
		}
	}

	out := make([]uint32, len(selected))
	for i, s := range selected {
		out[i] = s.id
	}
	return out
}

// removeLocked removes a node by internal id and repairs every layer it
// participated in. Caller must hold h.mu for writing.
func (h *HNSW) removeLocked(idx uint32) {
	nd := h.nodes[idx]
	if nd == nil {
		return
	}

	for lev := 0; lev <= nd.level && lev < len(nd.friends); lev++ {
		// Gather repair candidates: the deleted node's other neighbors
		// at this layer plus each surviving neighbor's own neighbor
		// list, then re-run the heuristic so the layer stays
		// well-connected instead of merely losing an edge.
		repairSet := make(map[uint32]struct{})
		for _, fID := range nd.friends[lev] {
			repairSet[fID] = struct{}{}
		}

		for _, fID := range nd.friends[lev] {
			fn := h.nodes[fID]
			if fn == nil || lev >= len(fn.friends) {
				continue
			}
			fn.friends[lev] = removeFrom(fn.friends[lev], idx)

			candidates := make([]uint32, 0, len(fn.friends[lev])+len(repairSet))
			candidates = append(candidates, fn.friends[lev]...)
			for other := range repairSet {
				if other != fID {
					candidates = append(candidates, other)
				}
			}
			fn.friends[lev] = h.selectHeuristic(fn.vector, dedupe(candidates), h.cfg.maxConns(lev))
		}
	}

	delete(h.idMap, nd.id)
	h.nodes[idx] = nil
	h.free = append(h.free, idx)
	h.count--

	if h.entryID == int32(idx) {
		h.findNewEntry()
	}
}

func (h *HNSW) findNewEntry() {
	if h.count == 0 {
		h.entryID = -1
		h.maxLevel = 0
		return
	}
	best := int32(-1)
	bestLevel := -1
	for i, nd := range h.nodes {
		if nd != nil && nd.level > bestLevel {
			best = int32(i)
			bestLevel = nd.level
		}
	}
	h.entryID = best
	h.maxLevel = bestLevel
}

func removeFrom(s []uint32, val uint32) []uint32 {
	for i, v := range s {
		if v == val {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func dedupe(s []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(s))
	out := s[:0:0]
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
