package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

type directTransport struct {
	primary *PrimaryLog
}

func (d *directTransport) GetUpdates(_ context.Context, _ string, fromSequence uint64) ([]Operation, error) {
	return d.primary.GetUpdates(fromSequence)
}

func TestReplicaPullAppliesInOrder(t *testing.T) {
	primaryStore := storage.NewMemoryStore()
	replicaStore := storage.NewMemoryStore()

	n := &types.Noun{ID: "a", Type: types.NounDocument, Version: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, primaryStore.SaveNoun(n))
	seq, err := primaryStore.AppendChange(types.ChangeEvent{Op: types.ChangeAdd, EntityKind: types.EntityNoun, ID: n.ID, Version: 1, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	transport := &directTransport{primary: NewPrimaryLog(primaryStore)}
	replica := NewReplica(replicaStore, transport, "primary-1", time.Millisecond)

	require.NoError(t, replica.PullOnce(context.Background()))

	got, err := replicaStore.GetNoun("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, uint64(1), replica.LastSequence())
}

func TestReplicaDiscardsStaleVersion(t *testing.T) {
	primaryStore := storage.NewMemoryStore()
	replicaStore := storage.NewMemoryStore()
	transport := &directTransport{primary: NewPrimaryLog(primaryStore)}
	replica := NewReplica(replicaStore, transport, "primary-1", time.Millisecond)

	newer := &types.Noun{ID: "a", Type: types.NounDocument, Version: 5, Metadata: map[string]any{"rev": "new"}}
	older := &types.Noun{ID: "a", Type: types.NounDocument, Version: 2, Metadata: map[string]any{"rev": "old"}}

	replica.applyLocked(Operation{ID: "a", Version: 5, Op: types.ChangeUpdate, EntityKind: types.EntityNoun, Noun: newer})
	replica.applyLocked(Operation{ID: "a", Version: 2, Op: types.ChangeUpdate, EntityKind: types.EntityNoun, Noun: older})

	got, err := replicaStore.GetNoun("a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Metadata["rev"])
}

func TestRoute(t *testing.T) {
	assert.Equal(t, TargetPrimary, Route(PreferReplica, types.ConsistencyEventual, true, 0, time.Second))
	assert.Equal(t, TargetPrimary, Route(PreferReplica, types.ConsistencyStrong, false, 0, time.Second))
	assert.Equal(t, TargetReplica, Route(PreferReplica, types.ConsistencyEventual, false, 0, time.Second))
	assert.Equal(t, TargetPrimary, Route(PreferReplica, types.ConsistencyBounded, false, 10*time.Second, time.Second))
	assert.Equal(t, TargetReplica, Route(PreferReplica, types.ConsistencyBounded, false, time.Millisecond, time.Second))
}
