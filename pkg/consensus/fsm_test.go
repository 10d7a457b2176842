package consensus

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

func applyCommand(t *testing.T, fsm *ClusterFSM, op string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(Command{Op: op, Data: payload})
	require.NoError(t, err)
	result := fsm.Apply(&raft.Log{Data: raw})
	if err, ok := result.(error); ok {
		require.NoError(t, err)
	}
}

func TestFSMRegisterNode(t *testing.T) {
	store := storage.NewMemoryStore()
	fsm := NewClusterFSM(store)

	applyCommand(t, fsm, OpRegisterNode, types.NodeInfo{ID: "n1", Endpoint: "10.0.0.1:8080"})

	cfg, err := store.GetClusterConfig()
	require.NoError(t, err)
	require.Contains(t, cfg.Nodes, "n1")
	assert.Equal(t, "10.0.0.1:8080", cfg.Nodes["n1"].Endpoint)
}

func TestFSMEveryMutationIncrementsVersion(t *testing.T) {
	store := storage.NewMemoryStore()
	fsm := NewClusterFSM(store)

	applyCommand(t, fsm, OpRegisterNode, types.NodeInfo{ID: "n1"})
	cfg, err := store.GetClusterConfig()
	require.NoError(t, err)
	v1 := cfg.Version

	applyCommand(t, fsm, OpSetLeader, "n1")
	cfg, err = store.GetClusterConfig()
	require.NoError(t, err)
	assert.Equal(t, v1+1, cfg.Version)
	assert.Equal(t, "n1", cfg.Leader)
	assert.False(t, cfg.Updated.IsZero())
}

func TestFSMDeregisterNodeClearsAssignments(t *testing.T) {
	store := storage.NewMemoryStore()
	fsm := NewClusterFSM(store)

	applyCommand(t, fsm, OpRegisterNode, types.NodeInfo{ID: "n1"})
	applyCommand(t, fsm, OpRegisterNode, types.NodeInfo{ID: "n2"})
	applyCommand(t, fsm, OpSetShardAssignments, map[string]types.ShardAssignment{
		"shard-000": {Primary: "n1", Replicas: []string{"n2"}},
		"shard-001": {Primary: "n2", Replicas: []string{"n1"}},
	})

	applyCommand(t, fsm, OpDeregisterNode, "n1")

	cfg, err := store.GetClusterConfig()
	require.NoError(t, err)
	assert.NotContains(t, cfg.Nodes, "n1")
	assert.Equal(t, "", cfg.Assignments["shard-000"].Primary)
	assert.NotContains(t, cfg.Assignments["shard-001"].Replicas, "n1")
	assert.Equal(t, "n2", cfg.Assignments["shard-001"].Primary)
}

func TestFSMSetSettings(t *testing.T) {
	store := storage.NewMemoryStore()
	fsm := NewClusterFSM(store)

	applyCommand(t, fsm, OpSetSettings, types.ClusterSettings{ReplicationFactor: 3, Dimension: 384})

	cfg, err := store.GetClusterConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Settings.ReplicationFactor)
	assert.Equal(t, 384, cfg.Settings.Dimension)
}

func TestFSMUnknownOpErrors(t *testing.T) {
	fsm := NewClusterFSM(storage.NewMemoryStore())
	raw, err := json.Marshal(Command{Op: "explode", Data: json.RawMessage("{}")})
	require.NoError(t, err)
	result := fsm.Apply(&raft.Log{Data: raw})
	err, ok := result.(error)
	require.True(t, ok)
	assert.Error(t, err)
}

func TestFSMSnapshotRestoreRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	fsm := NewClusterFSM(store)
	applyCommand(t, fsm, OpRegisterNode, types.NodeInfo{ID: "n1"})
	applyCommand(t, fsm, OpSetLeader, "n1")

	cfg, err := store.GetClusterConfig()
	require.NoError(t, err)
	encoded, err := json.Marshal(cfg)
	require.NoError(t, err)

	freshStore := storage.NewMemoryStore()
	fresh := NewClusterFSM(freshStore)
	require.NoError(t, fresh.Restore(io.NopCloser(strings.NewReader(string(encoded)))))

	restored, err := freshStore.GetClusterConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.Version, restored.Version)
	assert.Equal(t, "n1", restored.Leader)
	assert.Contains(t, restored.Nodes, "n1")
}
