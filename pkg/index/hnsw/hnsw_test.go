package hnsw

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVector(dim int, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func randomUnitVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rand.Float32()*2 - 1
	}
	return Normalize(v)
}

func TestInsertThenSearchFindsExactMatch(t *testing.T) {
	idx, err := New(Config{Dimension: 8, M: 16, EfConstruction: 200})
	require.NoError(t, err)

	v := unitVector(8, 0)
	require.NoError(t, idx.Insert("A", v))

	results, err := idx.Search(v, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-4)
}

func TestInsertRecallOnModestDataset(t *testing.T) {
	const dim = 32
	const n = 500

	idx, err := New(Config{Dimension: dim, M: 16, EfConstruction: 200, EfSearch: 64})
	require.NoError(t, err)

	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vectors[i] = randomUnitVector(dim)
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), vectors[i]))
	}

	hits := 0
	for i := 0; i < n; i++ {
		results, err := idx.Search(vectors[i], 1, nil)
		require.NoError(t, err)
		if len(results) == 1 && results[0].ID == fmt.Sprintf("id-%d", i) {
			hits++
		}
	}

	recall := float64(hits) / float64(n)
	assert.GreaterOrEqual(t, recall, 0.9, "recall dropped to %.3f", recall)
}

func TestInsertWrongDimensionIsInvalidArgument(t *testing.T) {
	idx, err := New(Config{Dimension: 4})
	require.NoError(t, err)

	err = idx.Insert("A", []float32{1, 0})
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.InvalidArgument))
	assert.Equal(t, 0, idx.Len())
}

func TestInsertNaNIsInvalidArgument(t *testing.T) {
	idx, err := New(Config{Dimension: 2})
	require.NoError(t, err)

	nan := float32(0)
	nan = nan / nan

	err = idx.Insert("A", []float32{nan, 0})
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.InvalidArgument))
}

func TestSearchKZeroReturnsEmptyNoError(t *testing.T) {
	idx, err := New(Config{Dimension: 4})
	require.NoError(t, err)
	require.NoError(t, idx.Insert("A", unitVector(4, 0)))

	results, err := idx.Search(unitVector(4, 0), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchKGreaterThanNReturnsAll(t *testing.T) {
	idx, err := New(Config{Dimension: 4})
	require.NoError(t, err)
	require.NoError(t, idx.Insert("A", unitVector(4, 0)))
	require.NoError(t, idx.Insert("B", unitVector(4, 1)))

	results, err := idx.Search(unitVector(4, 0), 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDeleteUnknownIDIsNoop(t *testing.T) {
	idx, err := New(Config{Dimension: 4})
	require.NoError(t, err)
	require.NoError(t, idx.Insert("A", unitVector(4, 0)))

	require.NoError(t, idx.Delete("does-not-exist"))
	assert.Equal(t, 1, idx.Len())
}

func TestDeletePromotesNewEntryPoint(t *testing.T) {
	const dim = 16
	idx, err := New(Config{Dimension: dim, M: 8})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), randomUnitVector(dim)))
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, idx.Delete(fmt.Sprintf("id-%d", i)))
	}
	assert.Equal(t, 0, idx.Len())

	// The index must still accept inserts after being drained to empty.
	require.NoError(t, idx.Insert("fresh", randomUnitVector(dim)))
	results, err := idx.Search(randomUnitVector(dim), 1, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchWithFilter(t *testing.T) {
	idx, err := New(Config{Dimension: 4, EfSearch: 50})
	require.NoError(t, err)

	require.NoError(t, idx.Insert("red", unitVector(4, 0)))
	require.NoError(t, idx.Insert("blue", unitVector(4, 1)))

	results, err := idx.Search(unitVector(4, 0), 10, func(id string) bool {
		return id == "blue"
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "blue", results[0].ID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	const dim = 12
	idx, err := New(Config{Dimension: dim, M: 8, Distance: types.DistanceCosine})
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), randomUnitVector(dim)))
	}

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	reloaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), reloaded.Len())
	assert.Equal(t, idx.Dimension(), reloaded.Dimension())

	query := randomUnitVector(dim)
	before, err := idx.Search(query, 5, nil)
	require.NoError(t, err)
	after, err := reloaded.Search(query, 5, nil)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.InDelta(t, before[i].Distance, after[i].Distance, 1e-6)
	}
}

func TestNeighborCountBound(t *testing.T) {
	const dim = 8
	idx, err := New(Config{Dimension: dim, M: 4})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), randomUnitVector(dim)))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, nd := range idx.nodes {
		if nd == nil {
			continue
		}
		for lev, neighbors := range nd.friends {
			limit := idx.cfg.maxConns(lev)
			assert.LessOrEqualf(t, len(neighbors), limit, "node %s layer %d exceeded bound", nd.id, lev)
		}
	}
}
