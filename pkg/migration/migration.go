package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/partition"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

// Phase identifies which of the four migration steps a Task is in.
type Phase string

const (
	PhasePending      Phase = "pending"
	PhaseTransferring Phase = "transferring"
	PhaseValidating   Phase = "validating"
	PhaseSwitching    Phase = "switching"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// Defaults per spec.md §5's retryPolicy fields.
const (
	DefaultBatchSize       = 1000
	DefaultMaxRetries      = 3
	DefaultRetryBaseDelay  = 2 * time.Second
	DefaultConsensusWait   = 30 * time.Second
	DefaultLocalDeleteWait = 1 * time.Hour
)

// Task tracks one shard's migration from one node to another through the
// propose/transfer/validate/switch protocol.
type Task struct {
	ID         string
	ShardIndex int
	ShardID    string
	FromNode   string
	ToNode     string
	Phase      Phase
	BatchSize  int
	NounsSent  int64
	VerbsSent  int64
	Attempt    int
	MaxRetries int
	StartedAt  time.Time
	UpdatedAt  time.Time
	Err        string
}

// ValidationResult is the target node's report of what it holds for a
// shard after transfer, compared against the source's counts.
type ValidationResult struct {
	NounCount int64
	VerbCount int64
}

// Transport carries the migration protocol's messages to the target node.
// brainy's HTTP control plane implements it over POST /rpc.
type Transport interface {
	SendNouns(ctx context.Context, toNode, shardID string, nouns []*types.Noun) error
	SendVerbs(ctx context.Context, toNode, shardID string, verbs []*types.Verb) error
	RequestValidate(ctx context.Context, toNode, shardID string) (ValidationResult, error)
	// RequestReset tells the target to drop what it has received for the
	// shard so far, so a retried transfer starts from a clean count.
	RequestReset(ctx context.Context, toNode, shardID string) error
	NotifySwitch(ctx context.Context, toNode, shardID string, assignment types.ShardAssignment) error
}

// ConsensusProposer is the subset of pkg/consensus's Raft/Simple
// coordinators migration needs to commit the new shard assignment.
type ConsensusProposer interface {
	IsLeader() bool
	Propose(op string, data any) error
}

// Coordinator drives shard migrations from the leader node. Its
// in-flight bookkeeping — a map of tasks guarded by a mutex, with
// stopCh-based shutdown — follows the same shape the teacher's
// pkg/worker/worker.go used to track in-flight container transfers,
// generalized here from containers to noun/verb batches.
type Coordinator struct {
	mu sync.Mutex

	store       storage.Store
	partitioner *partition.HashPartitioner
	transport   Transport
	consensus   ConsensusProposer

	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
	localDeleteAfter time.Duration

	tasks map[string]*Task

	stopCh chan struct{}
}

// Config tunes a Coordinator; zero values fall back to the spec defaults.
type Config struct {
	BatchSize        int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	LocalDeleteAfter time.Duration
}

// NewCoordinator builds a migration Coordinator.
func NewCoordinator(store storage.Store, partitioner *partition.HashPartitioner, transport Transport, consensus ConsensusProposer, cfg Config) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.LocalDeleteAfter <= 0 {
		cfg.LocalDeleteAfter = DefaultLocalDeleteWait
	}
	return &Coordinator{
		store:            store,
		partitioner:      partitioner,
		transport:        transport,
		consensus:        consensus,
		batchSize:        cfg.BatchSize,
		maxRetries:       cfg.MaxRetries,
		retryBaseDelay:   cfg.RetryBaseDelay,
		localDeleteAfter: cfg.LocalDeleteAfter,
		tasks:            make(map[string]*Task),
		stopCh:           make(chan struct{}),
	}
}

// Migrate proposes and drives a single shard's migration from fromNode to
// toNode, retrying the transfer/validate phases up to MaxRetries with
// exponential backoff before giving up. It returns once the task has
// reached PhaseSwitching or PhaseFailed; physical deletion on the source
// happens later, on its own delayed timer.
func (c *Coordinator) Migrate(ctx context.Context, shardIndex int, fromNode, toNode string) (*Task, error) {
	if !c.consensus.IsLeader() {
		return nil, fmt.Errorf("migration: only the leader may initiate a migration")
	}

	task := &Task{
		ID:         fmt.Sprintf("mig-%s-%d", types.ShardID(shardIndex), time.Now().UnixNano()),
		ShardIndex: shardIndex,
		ShardID:    types.ShardID(shardIndex),
		FromNode:   fromNode,
		ToNode:     toNode,
		Phase:      PhasePending,
		BatchSize:  c.batchSize,
		MaxRetries: c.maxRetries,
		StartedAt:  time.Now(),
	}
	c.mu.Lock()
	c.tasks[task.ID] = task
	c.mu.Unlock()

	var lastErr error
	for task.Attempt = 1; task.Attempt <= task.MaxRetries; task.Attempt++ {
		lastErr = c.runOnce(ctx, task)
		if lastErr == nil {
			return task, nil
		}
		log.Logger.Warn().Err(lastErr).Str("task", task.ID).Int("attempt", task.Attempt).Msg("migration: attempt failed")
		if err := c.transport.RequestReset(ctx, task.ToNode, task.ShardID); err != nil {
			log.Logger.Warn().Err(err).Str("task", task.ID).Msg("migration: target reset failed")
		}
		if task.Attempt < task.MaxRetries {
			backoff := c.retryBaseDelay * time.Duration(1<<uint(task.Attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break
			}
		}
	}

	c.mu.Lock()
	task.Phase = PhaseFailed
	task.Err = lastErr.Error()
	task.UpdatedAt = time.Now()
	c.mu.Unlock()
	return task, lastErr
}

// runOnce performs transfer, validate, and switch once; callers retry it.
func (c *Coordinator) runOnce(ctx context.Context, task *Task) error {
	if err := c.transfer(ctx, task); err != nil {
		return fmt.Errorf("migration: transfer: %w", err)
	}
	result, err := c.transport.RequestValidate(ctx, task.ToNode, task.ShardID)
	if err != nil {
		return fmt.Errorf("migration: validate: %w", err)
	}
	c.mu.Lock()
	task.Phase = PhaseValidating
	task.UpdatedAt = time.Now()
	c.mu.Unlock()
	if result.NounCount != task.NounsSent || result.VerbCount != task.VerbsSent {
		return fmt.Errorf("migration: validation mismatch: target has %d/%d nouns/verbs, expected %d/%d",
			result.NounCount, result.VerbCount, task.NounsSent, task.VerbsSent)
	}

	if err := c.switchOver(ctx, task); err != nil {
		return fmt.Errorf("migration: switch: %w", err)
	}

	go c.scheduleLocalDeletion(task)
	return nil
}

// transfer streams every noun and verb belonging to the shard to the
// target node in batches of BatchSize, sourced from the change log so it
// works identically against any Store implementation.
func (c *Coordinator) transfer(ctx context.Context, task *Task) error {
	c.mu.Lock()
	task.Phase = PhaseTransferring
	task.NounsSent, task.VerbsSent = 0, 0
	task.UpdatedAt = time.Now()
	c.mu.Unlock()

	nounIDs, verbIDs, err := c.shardMembers(task.ShardIndex)
	if err != nil {
		return err
	}

	nounBatch := make([]*types.Noun, 0, task.BatchSize)
	flushNouns := func() error {
		if len(nounBatch) == 0 {
			return nil
		}
		if err := c.transport.SendNouns(ctx, task.ToNode, task.ShardID, nounBatch); err != nil {
			return err
		}
		task.NounsSent += int64(len(nounBatch))
		nounBatch = nounBatch[:0]
		return nil
	}
	for _, id := range nounIDs {
		n, err := c.store.GetNoun(id)
		if err != nil || n == nil {
			continue
		}
		nounBatch = append(nounBatch, n)
		if len(nounBatch) >= task.BatchSize {
			if err := flushNouns(); err != nil {
				return err
			}
		}
	}
	if err := flushNouns(); err != nil {
		return err
	}

	verbBatch := make([]*types.Verb, 0, task.BatchSize)
	flushVerbs := func() error {
		if len(verbBatch) == 0 {
			return nil
		}
		if err := c.transport.SendVerbs(ctx, task.ToNode, task.ShardID, verbBatch); err != nil {
			return err
		}
		task.VerbsSent += int64(len(verbBatch))
		verbBatch = verbBatch[:0]
		return nil
	}
	for _, id := range verbIDs {
		v, err := c.store.GetVerb(id)
		if err != nil || v == nil {
			continue
		}
		verbBatch = append(verbBatch, v)
		if len(verbBatch) >= task.BatchSize {
			if err := flushVerbs(); err != nil {
				return err
			}
		}
	}
	return flushVerbs()
}

// shardMembers replays the change log to find every noun/verb ID whose
// partitioner-assigned shard matches shardIndex, deduplicating on ID so a
// later update or soft-delete supersedes an earlier entry.
func (c *Coordinator) shardMembers(shardIndex int) (nounIDs, verbIDs []string, err error) {
	it, err := c.store.ReadChangesSince(0)
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	seenNoun := make(map[string]struct{})
	seenVerb := make(map[string]struct{})
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		if c.partitioner.ShardIndex(ev.ID) != shardIndex {
			continue
		}
		switch ev.EntityKind {
		case types.EntityNoun:
			seenNoun[ev.ID] = struct{}{}
		case types.EntityVerb:
			seenVerb[ev.ID] = struct{}{}
		}
	}
	if err := it.Err(); err != nil {
		return nil, nil, err
	}
	for id := range seenNoun {
		nounIDs = append(nounIDs, id)
	}
	for id := range seenVerb {
		verbIDs = append(verbIDs, id)
	}
	return nounIDs, verbIDs, nil
}

// switchOver commits the new shard assignment through consensus and
// notifies the target so it starts serving the shard immediately; readers
// still in flight against the old primary complete unaffected.
func (c *Coordinator) switchOver(ctx context.Context, task *Task) error {
	c.mu.Lock()
	task.Phase = PhaseSwitching
	task.UpdatedAt = time.Now()
	c.mu.Unlock()

	assignment := types.ShardAssignment{Primary: task.ToNode}
	if err := c.consensus.Propose("set_shard_assignments", map[string]types.ShardAssignment{
		task.ShardID: assignment,
	}); err != nil {
		return err
	}
	return c.transport.NotifySwitch(ctx, task.ToNode, task.ShardID, assignment)
}

// scheduleLocalDeletion removes the shard's data from the source node
// only after LocalDeleteAfter has elapsed, giving in-flight reads against
// the old primary time to drain and giving operators a window to abort a
// bad migration before data is reclaimed.
func (c *Coordinator) scheduleLocalDeletion(task *Task) {
	select {
	case <-time.After(c.localDeleteAfter):
	case <-c.stopCh:
		return
	}
	nounIDs, verbIDs, err := c.shardMembers(task.ShardIndex)
	if err != nil {
		log.Logger.Warn().Err(err).Str("task", task.ID).Msg("migration: delayed deletion scan failed")
		return
	}
	for _, id := range verbIDs {
		_ = c.store.DeleteVerb(id)
	}
	for _, id := range nounIDs {
		_ = c.store.DeleteNoun(id)
	}
	c.mu.Lock()
	task.Phase = PhaseCompleted
	task.UpdatedAt = time.Now()
	c.mu.Unlock()
	log.Logger.Info().Str("task", task.ID).Msg("migration: source data reclaimed")
}

// Task returns a snapshot of a tracked migration task by ID.
func (c *Coordinator) Task(id string) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Stop cancels any pending delayed-deletion timers.
func (c *Coordinator) Stop() { close(c.stopCh) }
