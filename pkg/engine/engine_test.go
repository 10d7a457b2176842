package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/query"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

func unit(dim int, hot int) types.Vector {
	v := make(types.Vector, dim)
	v[hot] = 1
	return v
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(storage.NewMemoryStore(), nil, Config{NodeID: "n1", Dimension: 4, ShardCount: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestAddThenFindVectorExactMatch(t *testing.T) {
	e := newTestEngine(t)
	n := &types.Noun{ID: "a", Type: types.NounDocument, Vector: unit(4, 0)}
	require.NoError(t, e.Add(context.Background(), n))

	res, err := e.Find(context.Background(), query.Request{Like: n.Vector, Mode: query.ModeVector, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "a", res.Matches[0].ID)
}

func TestAddRejectsWrongDimension(t *testing.T) {
	e := newTestEngine(t)
	err := e.Add(context.Background(), &types.Noun{ID: "a", Type: types.NounDocument, Vector: unit(3, 0)})
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.InvalidArgument))
}

func TestDeleteThenRestoreRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	n := &types.Noun{ID: "z", Type: types.NounDocument, Vector: unit(4, 1)}
	require.NoError(t, e.Add(context.Background(), n))

	require.NoError(t, e.Delete(context.Background(), "z"))
	got, err := e.store.GetNoun("z")
	require.NoError(t, err)
	assert.True(t, got.Tombstone)

	require.NoError(t, e.Restore(context.Background(), "z"))
	got, err = e.store.GetNoun("z")
	require.NoError(t, err)
	assert.False(t, got.Tombstone)
}

func TestDeleteUnknownIDIsNoop(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Delete(context.Background(), "never-existed"))
}

func TestDeletedNounExcludedFromSearchByDefault(t *testing.T) {
	e := newTestEngine(t)
	n := &types.Noun{ID: "z", Type: types.NounDocument, Vector: unit(4, 1)}
	require.NoError(t, e.Add(context.Background(), n))
	require.NoError(t, e.Delete(context.Background(), "z"))

	res, err := e.Find(context.Background(), query.Request{Like: n.Vector, Mode: query.ModeVector, Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Matches, "tombstoned noun must not surface without IncludeDeleted")

	res, err = e.Find(context.Background(), query.Request{Like: n.Vector, Mode: query.ModeVector, Limit: 1, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "z", res.Matches[0].ID)

	require.NoError(t, e.Restore(context.Background(), "z"))
	res, err = e.Find(context.Background(), query.Request{Like: n.Vector, Mode: query.ModeVector, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "z", res.Matches[0].ID)
}

func TestAddNormalizesOffUnitVector(t *testing.T) {
	e := newTestEngine(t)
	n := &types.Noun{ID: "a", Type: types.NounDocument, Vector: types.Vector{3, 0, 0, 0}}
	require.NoError(t, e.Add(context.Background(), n))

	got, err := e.store.GetNoun("a")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(got.Vector[0]), 1e-6)

	// A non-unit query still finds the exact match with full score.
	res, err := e.Find(context.Background(), query.Request{Like: types.Vector{7, 0, 0, 0}, Mode: query.ModeVector, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "a", res.Matches[0].ID)
	assert.Greater(t, res.Matches[0].Score, 0.99)
}

func TestAddRejectsZeroVector(t *testing.T) {
	e := newTestEngine(t)
	err := e.Add(context.Background(), &types.Noun{ID: "a", Type: types.NounDocument, Vector: types.Vector{0, 0, 0, 0}})
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.InvalidArgument))
}

func TestRestoreNonTombstonedIsInvalidArgument(t *testing.T) {
	e := newTestEngine(t)
	n := &types.Noun{ID: "z", Type: types.NounDocument, Vector: unit(4, 1)}
	require.NoError(t, e.Add(context.Background(), n))

	err := e.Restore(context.Background(), "z")
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.InvalidArgument))
}

func TestRelateAndGraphFind(t *testing.T) {
	e := newTestEngine(t)
	p := &types.Noun{ID: "p", Type: types.NounDocument, Vector: unit(4, 0)}
	q := &types.Noun{ID: "q", Type: types.NounDocument, Vector: unit(4, 1)}
	require.NoError(t, e.Add(context.Background(), p))
	require.NoError(t, e.Add(context.Background(), q))
	require.NoError(t, e.Relate(context.Background(), &types.Verb{SourceID: "p", TargetID: "q", Type: types.VerbRelatesTo}))

	res, err := e.Find(context.Background(), query.Request{Connected: &query.Connected{From: "p", Depth: 1}, Mode: query.ModeGraph})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "q", res.Matches[0].ID)
}

func TestWriteGuardRefusesWritesOnReadOnly(t *testing.T) {
	e := newTestEngine(t)
	e.SetMode(ModeReadOnly)
	err := e.Add(context.Background(), &types.Noun{ID: "a", Type: types.NounDocument, Vector: unit(4, 0)})
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.ModeViolation))
}

func TestSearchGuardRefusesSearchOnWriteOnly(t *testing.T) {
	e := newTestEngine(t)
	e.SetMode(ModeWriteOnly)
	_, err := e.Find(context.Background(), query.Request{Like: unit(4, 0), Mode: query.ModeVector})
	require.Error(t, err)
	assert.True(t, brainyerr.Is(err, brainyerr.ModeViolation))
}

func TestRelateAutoCreatesMissingNouns(t *testing.T) {
	e, err := New(storage.NewMemoryStore(), nil, Config{NodeID: "n1", Dimension: 4, ShardCount: 1, AutoCreateMissingNouns: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.Relate(context.Background(), &types.Verb{SourceID: "x", TargetID: "y", Type: types.VerbRelatesTo}))
	_, err = e.store.GetNoun("x")
	require.NoError(t, err)
	_, err = e.store.GetNoun("y")
	require.NoError(t, err)
}
