package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	e, err := New(store, nil, Config{NodeID: "n1", Dimension: 4, ShardCount: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ctx := context.Background()
	a := &types.Noun{ID: "a", Type: types.NounConcept, Vector: unit(4, 0), Metadata: map[string]any{"tag": "red"}}
	b := &types.Noun{ID: "b", Type: types.NounConcept, Vector: unit(4, 1), Metadata: map[string]any{"tag": "blue"}}
	require.NoError(t, e.Add(ctx, a))
	require.NoError(t, e.Add(ctx, b))
	require.NoError(t, e.Relate(ctx, &types.Verb{ID: "r1", SourceID: "a", TargetID: "b", Type: types.VerbRelatesTo}))

	var buf bytes.Buffer
	require.NoError(t, e.Backup(&buf))

	store2 := storage.NewMemoryStore()
	e2, err := New(store2, nil, Config{NodeID: "n2", Dimension: 4, ShardCount: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e2.Close() })

	require.NoError(t, e2.RestoreBackup(bytes.NewReader(buf.Bytes())))

	got, err := e2.GetNoun("a")
	require.NoError(t, err)
	assert.Equal(t, "red", got.Metadata["tag"])

	matches, err := e2.Search(unit(4, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)

	verbs, err := e2.GetVerbsBySource("a")
	require.NoError(t, err)
	require.Len(t, verbs, 1)
	assert.Equal(t, "b", verbs[0].TargetID)
}

func TestBackupRestoreDimensionMismatch(t *testing.T) {
	store := storage.NewMemoryStore()
	e, err := New(store, nil, Config{NodeID: "n1", Dimension: 4, ShardCount: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	var buf bytes.Buffer
	require.NoError(t, e.Backup(&buf))

	store2 := storage.NewMemoryStore()
	e2, err := New(store2, nil, Config{NodeID: "n2", Dimension: 8, ShardCount: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e2.Close() })

	err = e2.RestoreBackup(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
}
