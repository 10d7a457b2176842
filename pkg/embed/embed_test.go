package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainydb/brainy/internal/brainyerr"
)

func TestEmbedIsDeterministic(t *testing.T) {
	e := NewStaticEmbedder(64)

	a, err := e.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])

	// A fresh embedder (empty cache) must produce the same vector.
	fresh := NewStaticEmbedder(64)
	c, err := fresh.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, a[0], c[0])
}

func TestEmbedReturnsUnitVectors(t *testing.T) {
	e := NewStaticEmbedder(384)
	vecs, err := e.Embed(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	for _, v := range vecs {
		require.Len(t, v, 384)
		var sumSq float64
		for _, x := range v {
			sumSq += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
	}
}

func TestDistinctTextsGetDistinctVectors(t *testing.T) {
	e := NewStaticEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestEmbedHonorsCancelledContext(t *testing.T) {
	e := NewStaticEmbedder(64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, []string{"x"})
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.Timeout))
}

func TestDimensionDefault(t *testing.T) {
	assert.Equal(t, 384, NewStaticEmbedder(0).Dimension())
	assert.Equal(t, 128, NewStaticEmbedder(128).Dimension())
}
