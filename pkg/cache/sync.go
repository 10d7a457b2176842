package cache

import (
	"sync"
	"time"
)

// SyncOp names a distributed cache-coherence message kind.
type SyncOp string

const (
	SyncInvalidate SyncOp = "invalidate"
	SyncUpdate     SyncOp = "update"
	SyncDelete     SyncOp = "delete"
	SyncBatch      SyncOp = "batch"
)

// SyncMessage is one cache-coherence event: a single key's invalidation,
// update, or delete, carrying the writer's node id and version so a
// receiver can apply it last-write-wins.
type SyncMessage struct {
	Op        SyncOp
	Key       string
	Version   uint64
	NodeID    string
	Timestamp time.Time
}

// BatchMessage wraps a batch of SyncMessages flushed together on
// SyncInterval or once MaxSyncBatchSize is reached.
type BatchMessage struct {
	Op       SyncOp
	Messages []SyncMessage
}

// Transport delivers a batch of sync messages to the rest of the
// cluster. The implementation lives in pkg/api; this package
// only needs to call it.
type Transport func(BatchMessage) error

// Syncer batches locally-originated cache mutations and flushes them to
// a Transport on SyncInterval or once MaxSyncBatchSize messages have
// accumulated, mirroring the buffered-channel/ticker shape used for
// cluster event distribution elsewhere in this codebase. Messages
// received from the local node itself are dropped before reaching
// ApplyRemote.
type Syncer struct {
	nodeID    string
	transport Transport
	interval  time.Duration
	maxBatch  int

	mu      sync.Mutex
	pending []SyncMessage
	stopCh  chan struct{}

	cache *Cache
}

// NewSyncer creates a Syncer wired to cache via SetSyncHook, and begins
// buffering cache mutations for delivery through transport.
func NewSyncer(cache *Cache, nodeID string, interval time.Duration, maxBatch int, transport Transport) *Syncer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxBatch <= 0 {
		maxBatch = 100
	}
	s := &Syncer{
		nodeID:    nodeID,
		transport: transport,
		interval:  interval,
		maxBatch:  maxBatch,
		stopCh:    make(chan struct{}),
		cache:     cache,
	}
	cache.SetSyncHook(s.enqueue)
	return s
}

// Start begins the flush loop.
func (s *Syncer) Start() {
	go s.run()
}

// Stop halts the flush loop, flushing any remaining buffered messages.
func (s *Syncer) Stop() {
	close(s.stopCh)
}

func (s *Syncer) enqueue(msg SyncMessage) {
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	full := len(s.pending) >= s.maxBatch
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

func (s *Syncer) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stopCh:
			s.flush()
			return
		}
	}
}

func (s *Syncer) flush() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if s.transport == nil {
		return
	}
	_ = s.transport(BatchMessage{Op: SyncBatch, Messages: batch})
}

// Receive applies an incoming batch from a peer, ignoring any messages
// that originated from this node (a peer may echo a message back by
// rebroadcasting, and this node's own writes must not be re-applied to
// itself).
func (s *Syncer) Receive(batch BatchMessage) {
	for _, msg := range batch.Messages {
		if msg.NodeID == s.nodeID {
			continue
		}
		s.cache.ApplyRemote(msg)
	}
}
