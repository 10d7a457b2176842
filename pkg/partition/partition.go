// Package partition implements brainy's deterministic key→shard mapping
// (spec.md §4.4): a hash partitioner used for storage paths and shard
// routing, and an affinity partitioner layered on top that lets a writer
// short-circuit requests that fall on its own preferred block.
package partition

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// HashPartitioner computes shard = hash(id) mod shardCount, fixed at
// cluster initialization per spec.md §3 ("this is fixed... and never
// changes at runtime").
type HashPartitioner struct {
	shardCount int
}

// New creates a HashPartitioner over shardCount shards. Panics if
// shardCount <= 0, since a zero-shard cluster cannot route anything —
// this is a construction-time invariant, not a runtime error callers
// are expected to recover from.
func New(shardCount int) *HashPartitioner {
	if shardCount <= 0 {
		panic("partition: shardCount must be positive")
	}
	return &HashPartitioner{shardCount: shardCount}
}

// ShardCount returns the fixed number of shards.
func (p *HashPartitioner) ShardCount() int { return p.shardCount }

// ShardIndex returns hash(id) mod shardCount.
func (p *HashPartitioner) ShardIndex(id string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum64() % uint64(p.shardCount))
}

// ShardID formats the shard id for id, e.g. "shard-007".
func (p *HashPartitioner) ShardID(id string) string {
	return fmt.Sprintf("shard-%03d", p.ShardIndex(id))
}

// Partition returns the storage path an id's vector partition lives
// under: "vectors/pNNN".
func (p *HashPartitioner) Partition(id string) string {
	return fmt.Sprintf("vectors/p%03d", p.ShardIndex(id))
}

// PartitionBatch groups ids by their partition path, the batch variant
// named in spec.md §4.4.
func (p *HashPartitioner) PartitionBatch(ids []string) map[string][]string {
	out := make(map[string][]string)
	for _, id := range ids {
		part := p.Partition(id)
		out[part] = append(out[part], id)
	}
	return out
}

// AffinityPartitioner assigns each writer in a cluster a contiguous block
// of partitions so a writer can short-circuit requests that fall on its
// own block. Preferences are advisory only: writes to any partition
// remain correct regardless of which node issues them.
type AffinityPartitioner struct {
	hp      *HashPartitioner
	self    string
	blocks  map[string][2]int // writerID -> [start, end) partition index range
	writers []string
}

// NewAffinity builds an AffinityPartitioner over writers (sorted for
// determinism) and shardCount partitions, contiguously dividing the
// partition space among them.
func NewAffinity(shardCount int, writers []string, self string) *AffinityPartitioner {
	hp := New(shardCount)
	sorted := append([]string(nil), writers...)
	sort.Strings(sorted)

	blocks := make(map[string][2]int, len(sorted))
	if len(sorted) > 0 {
		base := shardCount / len(sorted)
		rem := shardCount % len(sorted)
		start := 0
		for i, w := range sorted {
			size := base
			if i < rem {
				size++
			}
			blocks[w] = [2]int{start, start + size}
			start += size
		}
	}

	return &AffinityPartitioner{hp: hp, self: self, blocks: blocks, writers: sorted}
}

// Partition delegates to the underlying hash partitioner; affinity only
// changes which caller prefers which partitions, not the mapping itself.
func (a *AffinityPartitioner) Partition(id string) string { return a.hp.Partition(id) }

// ShardIndex delegates to the underlying hash partitioner.
func (a *AffinityPartitioner) ShardIndex(id string) int { return a.hp.ShardIndex(id) }

// IsPreferred reports whether partition index idx falls inside this
// node's contiguous block, letting it short-circuit a request onto the
// local path instead of forwarding.
func (a *AffinityPartitioner) IsPreferred(idx int) bool {
	block, ok := a.blocks[a.self]
	if !ok {
		return false
	}
	return idx >= block[0] && idx < block[1]
}

// PreferredWriter returns which writer's block partition idx falls in,
// and whether any writer owns that index (false only if writers is
// empty).
func (a *AffinityPartitioner) PreferredWriter(idx int) (string, bool) {
	for _, w := range a.writers {
		block := a.blocks[w]
		if idx >= block[0] && idx < block[1] {
			return w, true
		}
	}
	return "", false
}
