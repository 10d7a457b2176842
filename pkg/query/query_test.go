package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainydb/brainy/pkg/index/hnsw"
	"github.com/brainydb/brainy/pkg/metadata"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

func newFixture(t *testing.T) (*Planner, storage.Store, *hnsw.HNSW, *metadata.Index) {
	t.Helper()
	store := storage.NewMemoryStore()
	index, err := hnsw.New(hnsw.Config{Dimension: 2, M: 8, EfConstruction: 32, EfSearch: 32, MaxElements: 1000})
	require.NoError(t, err)
	mindex := metadata.New()

	nouns := []*types.Noun{
		{ID: "a", Vector: types.Vector{1, 0}, Type: types.NounDocument, Metadata: map[string]any{"color": "red"}, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		{ID: "b", Vector: types.Vector{0.9, 0.1}, Type: types.NounDocument, Metadata: map[string]any{"color": "red"}, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		{ID: "c", Vector: types.Vector{0, 1}, Type: types.NounDocument, Metadata: map[string]any{"color": "blue"}, CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}
	for _, n := range nouns {
		require.NoError(t, store.SaveNoun(n))
		require.NoError(t, index.Insert(n.ID, n.Vector))
		mindex.Add(n.ID, "color", n.Metadata["color"].(string))
	}
	require.NoError(t, store.SaveVerb(&types.Verb{ID: "v1", Type: types.VerbRelatesTo, SourceID: "a", TargetID: "b", Weight: 1}))
	require.NoError(t, store.SaveVerb(&types.Verb{ID: "v2", Type: types.VerbRelatesTo, SourceID: "b", TargetID: "c", Weight: 1}))

	planner := &Planner{
		Vector:   &VectorStrategy{Index: index, Store: store},
		Metadata: &MetadataStrategy{Index: mindex, Store: store},
		Graph:    &GraphStrategy{Store: store},
		DirectLookup: func(id string) (Match, bool, error) {
			n, err := store.GetNoun(id)
			if err != nil || n == nil {
				return Match{}, false, err
			}
			return Match{ID: n.ID}, true, nil
		},
	}
	return planner, store, index, mindex
}

func TestPlannerVectorMode(t *testing.T) {
	planner, _, _, _ := newFixture(t)
	res, err := planner.Plan(context.Background(), Request{
		Like: types.Vector{1, 0}, Mode: ModeVector, Limit: 2,
	}, Guard{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, "a", res.Matches[0].ID)
}

func TestPlannerMetadataMode(t *testing.T) {
	planner, _, _, _ := newFixture(t)
	pred := metadata.Eq("color", "red")
	res, err := planner.Plan(context.Background(), Request{Where: &pred, Mode: ModeMetadata, Limit: 10}, Guard{})
	require.NoError(t, err)
	ids := []string{}
	for _, m := range res.Matches {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestPlannerGraphMode(t *testing.T) {
	planner, _, _, _ := newFixture(t)
	res, err := planner.Plan(context.Background(), Request{
		Connected: &Connected{From: "a", Depth: 2}, Mode: ModeGraph, MaxDepth: 2, Limit: 10,
	}, Guard{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "b", res.Matches[0].ID)
	assert.Equal(t, 1, res.Matches[0].GraphDepth)
}

func TestPlannerFusionMode(t *testing.T) {
	planner, _, _, _ := newFixture(t)
	pred := metadata.Eq("color", "red")
	res, err := planner.Plan(context.Background(), Request{
		Like: types.Vector{1, 0}, Where: &pred, Mode: ModeFusion, Limit: 10,
	}, Guard{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
}

func TestPlannerAutoModeHeuristics(t *testing.T) {
	assert.Equal(t, ModeVector, resolveAutoMode(Request{Like: "hello"}))
	pred := metadata.Eq("color", "red")
	assert.Equal(t, ModeMetadata, resolveAutoMode(Request{Where: &pred}))
	assert.Equal(t, ModeGraph, resolveAutoMode(Request{Connected: &Connected{From: "a"}}))
	assert.Equal(t, ModeFusion, resolveAutoMode(Request{Like: "hello", Connected: &Connected{From: "a"}}))
}

func TestPlannerWriteOnlyGuardRefusesSearch(t *testing.T) {
	planner, _, _, _ := newFixture(t)
	_, err := planner.Plan(context.Background(), Request{Like: types.Vector{1, 0}, Mode: ModeVector}, Guard{WriteOnly: true})
	assert.Error(t, err)
}

func TestPlannerDirectLookupBypassesGuard(t *testing.T) {
	planner, _, _, _ := newFixture(t)
	res, err := planner.Plan(context.Background(), Request{ID: "a", AllowDirectReads: true}, Guard{WriteOnly: true})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "a", res.Matches[0].ID)
}

func TestPlannerCursorPagination(t *testing.T) {
	planner, _, _, _ := newFixture(t)
	first, err := planner.Plan(context.Background(), Request{Like: types.Vector{1, 0}, Mode: ModeVector, Limit: 1}, Guard{})
	require.NoError(t, err)
	require.Len(t, first.Matches, 1)
	require.NotEmpty(t, first.NextCursor)

	second, err := planner.Plan(context.Background(), Request{Like: types.Vector{1, 0}, Mode: ModeVector, Limit: 1, Cursor: first.NextCursor}, Guard{})
	require.NoError(t, err)
	require.Len(t, second.Matches, 1)
	assert.NotEqual(t, first.Matches[0].ID, second.Matches[0].ID)
}
