package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brainydb/brainy/pkg/cache"
	"github.com/brainydb/brainy/pkg/consensus"
	"github.com/brainydb/brainy/pkg/migration"
	"github.com/brainydb/brainy/pkg/replication"
	"github.com/brainydb/brainy/pkg/types"
)

// RegisterConsensusHandlers wires the dev-mode SimpleCoordinator's
// incoming RequestVote/AppendEntries RPCs to r, so a peer's Client.call
// reaches coord.HandleRequestVote/HandleAppendEntries. The production
// hashicorp/raft coordinator does not go through this registry — it owns
// its own TCP transport per pkg/consensus/raft.go.
func RegisterConsensusHandlers(r *Registry, coord *consensus.SimpleCoordinator) {
	r.Register(methodRequestVote, func(params json.RawMessage) (any, error) {
		var args consensus.RequestVoteArgs
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, err
		}
		return coord.HandleRequestVote(args), nil
	})
	r.Register(methodAppendEntries, func(params json.RawMessage) (any, error) {
		var args consensus.AppendEntriesArgs
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, err
		}
		return coord.HandleAppendEntries(args), nil
	})
	r.Register("handshake", func(params json.RawMessage) (any, error) {
		var args consensus.HandshakeArgs
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, err
		}
		coord.HandleHandshake(args)
		return nil, nil
	})
}

// migrationValidateParams/migrationSwitchParams decode RequestValidate
// and NotifySwitch's RPC params.
type migrationValidateParams struct {
	ShardID string `json:"shardId"`
}

type migrationSwitchParams struct {
	ShardID    string                `json:"shardId"`
	Assignment types.ShardAssignment `json:"assignment"`
}

// RegisterMigrationHandlers wires the target side of shard migration
// (validate counts, switch notification) to r.
func RegisterMigrationHandlers(r *Registry, receiver *migration.Receiver) {
	r.Register(methodRequestValidate, func(params json.RawMessage) (any, error) {
		var p migrationValidateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return receiver.Validate(p.ShardID), nil
	})
	r.Register(methodRequestReset, func(params json.RawMessage) (any, error) {
		var p migrationValidateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		receiver.Reset(p.ShardID)
		return nil, nil
	})
	r.Register(methodNotifySwitch, func(params json.RawMessage) (any, error) {
		var p migrationSwitchParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, receiver.ApplySwitch(p.ShardID, p.Assignment)
	})
}

// RegisterCoordinatorHandlers wires the leader-only migration.start RPC
// to coord.Migrate, for the `brainy migrate` CLI command to trigger
// remotely against whichever node currently holds leadership.
func RegisterCoordinatorHandlers(r *Registry, coord *migration.Coordinator) {
	r.Register(methodMigrationStart, func(params json.RawMessage) (any, error) {
		var p migrationStartParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		task, err := coord.Migrate(context.Background(), p.ShardIndex, p.FromNode, p.ToNode)
		if err != nil {
			return nil, err
		}
		return task, nil
	})
}

// RegisterReplicationHandlers wires a replica's getUpdates pull to the
// primary's change log + entity snapshots.
func RegisterReplicationHandlers(r *Registry, primary *replication.PrimaryLog) {
	r.Register(methodGetUpdates, func(params json.RawMessage) (any, error) {
		var p struct {
			FromSequence uint64 `json:"fromSequence"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return primary.GetUpdates(p.FromSequence)
	})
}

// RegisterCacheHandlers wires an incoming distributed-invalidation batch
// to the local Syncer, which drops self-originated messages and applies
// the rest to the cache's version-checked ApplyRemote.
func RegisterCacheHandlers(r *Registry, syncer *cache.Syncer) {
	r.Register(methodCacheSyncBatch, func(params json.RawMessage) (any, error) {
		var batch cache.BatchMessage
		if err := json.Unmarshal(params, &batch); err != nil {
			return nil, fmt.Errorf("api: malformed cache sync batch: %w", err)
		}
		syncer.Receive(batch)
		return nil, nil
	})
}
