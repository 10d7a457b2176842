package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardIndexIsStable(t *testing.T) {
	p := New(16)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("noun-%d", i)
		first := p.ShardIndex(id)
		assert.Equal(t, first, p.ShardIndex(id))
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 16)
	}
}

func TestShardIDAndPartitionFormat(t *testing.T) {
	p := New(8)
	idx := p.ShardIndex("some-id")
	assert.Equal(t, fmt.Sprintf("shard-%03d", idx), p.ShardID("some-id"))
	assert.Equal(t, fmt.Sprintf("vectors/p%03d", idx), p.Partition("some-id"))
}

func TestPartitionBatchGroupsByPartition(t *testing.T) {
	p := New(4)
	ids := []string{"a", "b", "c", "d", "e", "f"}
	groups := p.PartitionBatch(ids)

	total := 0
	for part, members := range groups {
		for _, id := range members {
			assert.Equal(t, part, p.Partition(id))
		}
		total += len(members)
	}
	assert.Equal(t, len(ids), total)
}

func TestNewPanicsOnNonPositiveShardCount(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-1) })
}

func TestAffinityBlocksCoverAllPartitions(t *testing.T) {
	writers := []string{"w3", "w1", "w2"}
	a := NewAffinity(10, writers, "w1")

	// Every partition index must belong to exactly one writer.
	counts := make(map[string]int)
	for idx := 0; idx < 10; idx++ {
		w, ok := a.PreferredWriter(idx)
		require.True(t, ok)
		counts[w]++
	}
	// 10 partitions over 3 writers splits 4/3/3.
	assert.Len(t, counts, 3)
	for _, n := range counts {
		assert.InDelta(t, 10.0/3.0, float64(n), 1)
	}
}

func TestAffinityIsPreferredMatchesOwnBlock(t *testing.T) {
	a := NewAffinity(10, []string{"w1", "w2"}, "w2")
	for idx := 0; idx < 10; idx++ {
		w, ok := a.PreferredWriter(idx)
		require.True(t, ok)
		assert.Equal(t, w == "w2", a.IsPreferred(idx))
	}
}

func TestAffinityUnknownSelfPrefersNothing(t *testing.T) {
	a := NewAffinity(4, []string{"w1"}, "not-a-writer")
	for idx := 0; idx < 4; idx++ {
		assert.False(t, a.IsPreferred(idx))
	}
}

func TestAffinityBlockAssignmentIsDeterministic(t *testing.T) {
	a1 := NewAffinity(12, []string{"b", "a", "c"}, "a")
	a2 := NewAffinity(12, []string{"c", "b", "a"}, "a")
	for idx := 0; idx < 12; idx++ {
		w1, _ := a1.PreferredWriter(idx)
		w2, _ := a2.PreferredWriter(idx)
		assert.Equal(t, w1, w2, "writer order must not change block assignment")
	}
}

func TestAffinityDelegatesHashing(t *testing.T) {
	hp := New(8)
	a := NewAffinity(8, []string{"w1"}, "w1")
	assert.Equal(t, hp.ShardIndex("id-42"), a.ShardIndex("id-42"))
	assert.Equal(t, hp.Partition("id-42"), a.Partition("id-42"))
}
