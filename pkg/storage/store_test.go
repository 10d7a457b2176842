package storage

import (
	"testing"
	"time"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   bolt,
	}
}

func TestStoreNounCRUD(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			n := &types.Noun{
				ID:        "noun-1",
				Vector:    types.Vector{1, 0, 0},
				Type:      types.NounConcept,
				CreatedAt: time.Now(),
			}
			require.NoError(t, store.SaveNoun(n))

			got, err := store.GetNoun("noun-1")
			require.NoError(t, err)
			assert.Equal(t, n.ID, got.ID)
			assert.Equal(t, n.Type, got.Type)

			byType, err := store.ListNounsByType(types.NounConcept)
			require.NoError(t, err)
			assert.Len(t, byType, 1)

			require.NoError(t, store.DeleteNoun("noun-1"))
			_, err = store.GetNoun("noun-1")
			require.Error(t, err)
			assert.True(t, brainyerr.Is(err, brainyerr.NotFound))
		})
	}
}

func TestStoreVerbIndexes(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			v := &types.Verb{
				ID:       "verb-1",
				Type:     types.VerbRelatesTo,
				SourceID: "A",
				TargetID: "B",
			}
			require.NoError(t, store.SaveVerb(v))

			bySource, err := store.GetVerbsBySource("A")
			require.NoError(t, err)
			require.Len(t, bySource, 1)
			assert.Equal(t, "verb-1", bySource[0].ID)

			byTarget, err := store.GetVerbsByTarget("B")
			require.NoError(t, err)
			require.Len(t, byTarget, 1)

			byType, err := store.GetVerbsByType(types.VerbRelatesTo)
			require.NoError(t, err)
			require.Len(t, byType, 1)

			require.NoError(t, store.DeleteVerb("verb-1"))
			bySource, err = store.GetVerbsBySource("A")
			require.NoError(t, err)
			assert.Empty(t, bySource)
		})
	}
}

func TestStoreMetadata(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SaveMetadata("key1", []byte("value1")))
			got, err := store.GetMetadata("key1")
			require.NoError(t, err)
			assert.Equal(t, []byte("value1"), got)

			_, err = store.GetMetadata("missing")
			require.Error(t, err)
			assert.True(t, brainyerr.Is(err, brainyerr.NotFound))
		})
	}
}

func TestStoreClusterConfigVersioning(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			cfg := &types.ClusterConfig{Version: 1, Nodes: map[string]*types.NodeInfo{}}
			require.NoError(t, store.SaveClusterConfig(cfg))

			got, err := store.GetClusterConfig()
			require.NoError(t, err)
			assert.Equal(t, uint64(1), got.Version)

			cfg.Version = 2
			require.NoError(t, store.SaveClusterConfig(cfg))
			got, err = store.GetClusterConfig()
			require.NoError(t, err)
			assert.Equal(t, uint64(2), got.Version)
		})
	}
}

func TestStoreStats(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SaveNoun(&types.Noun{ID: "a", Type: types.NounConcept}))
			require.NoError(t, store.SaveNoun(&types.Noun{ID: "b", Type: types.NounConcept, Tombstone: true, DeletedAt: time.Now()}))
			require.NoError(t, store.SaveNoun(&types.Noun{ID: "c", Type: types.NounDocument}))
			require.NoError(t, store.SaveVerb(&types.Verb{ID: "v", Type: types.VerbRelatesTo, SourceID: "a", TargetID: "c"}))

			stats, err := store.Stats()
			require.NoError(t, err)
			assert.Equal(t, 2, stats.NounsByType[string(types.NounConcept)])
			assert.Equal(t, 1, stats.NounsByType[string(types.NounDocument)])
			assert.Equal(t, 1, stats.VerbsByType[string(types.VerbRelatesTo)])
			assert.Equal(t, 1, stats.Tombstones)
		})
	}
}

func TestChangeLogOrderingAndRestart(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			var lastSeq uint64
			for i := 0; i < 5; i++ {
				seq, err := store.AppendChange(types.ChangeEvent{
					Op:         types.ChangeAdd,
					EntityKind: types.EntityNoun,
					ID:         "noun-1",
					Timestamp:  time.Now(),
				})
				require.NoError(t, err)
				assert.Greater(t, seq, lastSeq)
				lastSeq = seq
			}

			it, err := store.ReadChangesSince(0)
			require.NoError(t, err)
			defer it.Close()

			var seqs []uint64
			for {
				e, ok := it.Next()
				if !ok {
					break
				}
				seqs = append(seqs, e.Seq)
			}
			require.NoError(t, it.Err())
			require.Len(t, seqs, 5)
			for i := 1; i < len(seqs); i++ {
				assert.Greater(t, seqs[i], seqs[i-1])
			}

			// Restarting from the middle of the sequence yields only
			// the later events.
			mid := seqs[2]
			it2, err := store.ReadChangesSince(mid)
			require.NoError(t, err)
			defer it2.Close()

			var restarted []uint64
			for {
				e, ok := it2.Next()
				if !ok {
					break
				}
				restarted = append(restarted, e.Seq)
			}
			assert.Len(t, restarted, 2)
		})
	}
}
