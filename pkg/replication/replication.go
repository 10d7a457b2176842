package replication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

// ReadPreference selects where a read is routed.
type ReadPreference string

const (
	PreferPrimary ReadPreference = "primary"
	PreferReplica ReadPreference = "replica"
	PreferNearest ReadPreference = "nearest"
)

// Target is the outcome of routing a single read.
type Target string

const (
	TargetPrimary Target = "primary"
	TargetReplica Target = "replica"
)

// Operation is one entry in the replication log, carried over the wire
// to a replica's getUpdates pull. It mirrors spec.md §4.9's
// {operations[], lastSequence, primaryVersion} shape entry-for-entry,
// reusing types.ChangeEvent's Seq/Version fields rather than inventing a
// parallel numbering scheme.
type Operation struct {
	Seq        uint64            `json:"seq"`
	Op         types.ChangeEventOp `json:"op"`
	EntityKind types.EntityKind  `json:"entityKind"`
	ID         string            `json:"id"`
	Version    uint64            `json:"version"`
	Timestamp  time.Time         `json:"timestamp"`
	Noun       *types.Noun       `json:"noun,omitempty"`
	Verb       *types.Verb       `json:"verb,omitempty"`
}

// Transport fetches operations from a replica's primary.
type Transport interface {
	GetUpdates(ctx context.Context, primaryNode string, fromSequence uint64) ([]Operation, error)
}

// PrimaryLog serves getUpdates requests straight off the existing change
// log and entity stores; spec.md's replication log is not a separate
// structure here, it is the change log plus the entity's Version field
// already present on every types.Noun/types.Verb.
type PrimaryLog struct {
	store storage.Store
}

// NewPrimaryLog wraps store for serving replication pulls.
func NewPrimaryLog(store storage.Store) *PrimaryLog { return &PrimaryLog{store: store} }

// GetUpdates returns every change with Seq > fromSequence, each paired
// with the current snapshot of the entity it names.
func (p *PrimaryLog) GetUpdates(fromSequence uint64) ([]Operation, error) {
	it, err := p.store.ReadChangesSince(fromSequence)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ops []Operation
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		op := Operation{Seq: ev.Seq, Op: ev.Op, EntityKind: ev.EntityKind, ID: ev.ID, Version: ev.Version, Timestamp: ev.Timestamp}
		switch ev.EntityKind {
		case types.EntityNoun:
			if n, err := p.store.GetNoun(ev.ID); err == nil {
				op.Noun = n
			}
		case types.EntityVerb:
			if v, err := p.store.GetVerb(ev.ID); err == nil {
				op.Verb = v
			}
		}
		ops = append(ops, op)
	}
	return ops, it.Err()
}

// Replica pulls operations from a primary on a fixed interval and applies
// them idempotently, keyed by (id, version): an operation whose version
// is not strictly greater than the last one applied for that id is
// discarded, the same idempotent-overwrite discipline the teacher's
// WarrenFSM.Apply uses for its own per-key state (last write for a given
// key wins, replays of an already-applied entry are harmless).
type Replica struct {
	mu sync.Mutex

	store       storage.Store
	transport   Transport
	primaryNode string

	syncInterval time.Duration

	lastSequence uint64
	appliedVersion map[string]uint64

	lastSyncAt     time.Time
	replicationLag time.Duration

	stopCh chan struct{}
}

// DefaultSyncInterval is how often a replica pulls getUpdates absent an
// override.
const DefaultSyncInterval = 2 * time.Second

// NewReplica builds a Replica pulling from primaryNode through transport.
func NewReplica(store storage.Store, transport Transport, primaryNode string, syncInterval time.Duration) *Replica {
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	return &Replica{
		store:          store,
		transport:      transport,
		primaryNode:    primaryNode,
		syncInterval:   syncInterval,
		appliedVersion: make(map[string]uint64),
		stopCh:         make(chan struct{}),
	}
}

// Start launches the background pull loop.
func (r *Replica) Start() { go r.loop() }

// Stop halts the pull loop.
func (r *Replica) Stop() { close(r.stopCh) }

func (r *Replica) loop() {
	ticker := time.NewTicker(r.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.PullOnce(context.Background()); err != nil {
				log.Logger.Warn().Err(err).Msg("replication: pull failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// PullOnce fetches and applies every operation since the last sequence
// the replica observed.
func (r *Replica) PullOnce(ctx context.Context) error {
	r.mu.Lock()
	from := r.lastSequence
	r.mu.Unlock()

	ops, err := r.transport.GetUpdates(ctx, r.primaryNode, from)
	if err != nil {
		return fmt.Errorf("replication: getUpdates: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range ops {
		r.applyLocked(op)
	}
	r.lastSyncAt = time.Now()
	if len(ops) > 0 {
		r.replicationLag = time.Since(ops[len(ops)-1].Timestamp)
	} else {
		r.replicationLag = 0
	}
	return nil
}

func (r *Replica) applyLocked(op Operation) {
	if op.Version <= r.appliedVersion[op.ID] {
		return
	}
	switch op.Op {
	case types.ChangeDelete:
		r.deleteEntity(op)
	default:
		r.upsertEntity(op)
	}
	r.appliedVersion[op.ID] = op.Version
	if op.Seq > r.lastSequence {
		r.lastSequence = op.Seq
	}
}

func (r *Replica) upsertEntity(op Operation) {
	switch op.EntityKind {
	case types.EntityNoun:
		if op.Noun != nil {
			if err := r.store.SaveNoun(op.Noun); err != nil {
				log.Logger.Warn().Err(err).Str("id", op.ID).Msg("replication: apply noun failed")
			}
		}
	case types.EntityVerb:
		if op.Verb != nil {
			if err := r.store.SaveVerb(op.Verb); err != nil {
				log.Logger.Warn().Err(err).Str("id", op.ID).Msg("replication: apply verb failed")
			}
		}
	}
}

func (r *Replica) deleteEntity(op Operation) {
	switch op.EntityKind {
	case types.EntityNoun:
		if op.Noun != nil {
			_ = r.store.SaveNoun(op.Noun) // soft-delete: persist the tombstoned snapshot
			return
		}
		_ = r.store.DeleteNoun(op.ID)
	case types.EntityVerb:
		if op.Verb != nil {
			_ = r.store.SaveVerb(op.Verb)
			return
		}
		_ = r.store.DeleteVerb(op.ID)
	}
}

// Lag reports how far behind the primary this replica's last successful
// pull was.
func (r *Replica) Lag() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replicationLag
}

// LastSequence reports the highest sequence number this replica has
// applied.
func (r *Replica) LastSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSequence
}

// Route resolves a read request's (ReadPreference, ConsistencyLevel) pair
// to a concrete Target given the caller's role and the replica's current
// lag, per spec.md §4.9.
func Route(pref ReadPreference, level types.ConsistencyLevel, isPrimary bool, lag, maxStaleness time.Duration) Target {
	if isPrimary {
		return TargetPrimary
	}
	if level == types.ConsistencyStrong {
		return TargetPrimary
	}
	if pref == PreferPrimary {
		return TargetPrimary
	}
	if level == types.ConsistencyBounded && lag > maxStaleness {
		return TargetPrimary
	}
	return TargetReplica
}
