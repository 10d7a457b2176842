package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainydb/brainy/pkg/partition"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

type fakeTransport struct {
	nouns       map[string][]*types.Noun
	verbs       map[string][]*types.Verb
	switched    []types.ShardAssignment
	failTimes   int
}

func (f *fakeTransport) SendNouns(_ context.Context, toNode, shardID string, nouns []*types.Noun) error {
	f.nouns[shardID] = append(f.nouns[shardID], nouns...)
	return nil
}

func (f *fakeTransport) SendVerbs(_ context.Context, toNode, shardID string, verbs []*types.Verb) error {
	f.verbs[shardID] = append(f.verbs[shardID], verbs...)
	return nil
}

func (f *fakeTransport) RequestValidate(_ context.Context, toNode, shardID string) (ValidationResult, error) {
	if f.failTimes > 0 {
		f.failTimes--
		return ValidationResult{}, assertErr("validation unavailable")
	}
	return ValidationResult{
		NounCount: int64(len(f.nouns[shardID])),
		VerbCount: int64(len(f.verbs[shardID])),
	}, nil
}

func (f *fakeTransport) RequestReset(_ context.Context, toNode, shardID string) error {
	delete(f.nouns, shardID)
	delete(f.verbs, shardID)
	return nil
}

func (f *fakeTransport) NotifySwitch(_ context.Context, toNode, shardID string, assignment types.ShardAssignment) error {
	f.switched = append(f.switched, assignment)
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeConsensus struct{ leader bool }

func (f *fakeConsensus) IsLeader() bool { return f.leader }
func (f *fakeConsensus) Propose(op string, data any) error {
	return nil
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	return storage.NewMemoryStore()
}

func TestCoordinatorMigrateTransfersAndSwitches(t *testing.T) {
	store := newTestStore(t)
	part := partition.New(4)

	var nounID string
	for i := 0; i < 200; i++ {
		n := &types.Noun{ID: randID(i), Type: types.NounDocument, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		require.NoError(t, store.SaveNoun(n))
		_, err := store.AppendChange(types.ChangeEvent{Op: types.ChangeAdd, EntityKind: types.EntityNoun, ID: n.ID, Timestamp: time.Now()})
		require.NoError(t, err)
		if part.ShardIndex(n.ID) == 0 {
			nounID = n.ID
		}
	}
	require.NotEmpty(t, nounID)

	transport := &fakeTransport{nouns: map[string][]*types.Noun{}, verbs: map[string][]*types.Verb{}}
	consensus := &fakeConsensus{leader: true}
	coord := NewCoordinator(store, part, transport, consensus, Config{BatchSize: 10, LocalDeleteAfter: time.Hour})

	task, err := coord.Migrate(context.Background(), 0, "node-a", "node-b")
	require.NoError(t, err)
	assert.Equal(t, PhaseSwitching, task.Phase)
	assert.Len(t, transport.switched, 1)
	assert.Equal(t, "node-b", transport.switched[0].Primary)
	assert.True(t, task.NounsSent > 0)
}

func TestCoordinatorMigrateRetriesOnValidationFailure(t *testing.T) {
	store := newTestStore(t)
	part := partition.New(2)

	n := &types.Noun{ID: "a", Type: types.NounDocument, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, store.SaveNoun(n))
	_, err := store.AppendChange(types.ChangeEvent{Op: types.ChangeAdd, EntityKind: types.EntityNoun, ID: n.ID, Timestamp: time.Now()})
	require.NoError(t, err)
	shard := part.ShardIndex(n.ID)

	transport := &fakeTransport{nouns: map[string][]*types.Noun{}, verbs: map[string][]*types.Verb{}, failTimes: 1}
	consensus := &fakeConsensus{leader: true}
	coord := NewCoordinator(store, part, transport, consensus, Config{BatchSize: 10, MaxRetries: 3, RetryBaseDelay: time.Millisecond, LocalDeleteAfter: time.Hour})

	task, err := coord.Migrate(context.Background(), shard, "node-a", "node-b")
	require.NoError(t, err)
	assert.Equal(t, 2, task.Attempt)
}

func TestCoordinatorMigrateRejectsNonLeader(t *testing.T) {
	store := newTestStore(t)
	part := partition.New(1)
	transport := &fakeTransport{nouns: map[string][]*types.Noun{}, verbs: map[string][]*types.Verb{}}
	consensus := &fakeConsensus{leader: false}
	coord := NewCoordinator(store, part, transport, consensus, Config{})

	_, err := coord.Migrate(context.Background(), 0, "node-a", "node-b")
	assert.Error(t, err)
}

func randID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for j := range b {
		b[j] = letters[(i*7+j*13)%len(letters)]
	}
	return string(b)
}
