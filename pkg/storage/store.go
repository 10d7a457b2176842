package storage

import "github.com/brainydb/brainy/pkg/types"

// StorageStatus is a lightweight health/size summary used by the cluster
// status API and by metrics collection.
type StorageStatus struct {
	Healthy   bool  `json:"healthy"`
	NounCount int64 `json:"nounCount"`
	VerbCount int64 `json:"verbCount"`
	SizeBytes int64 `json:"sizeBytes"`
}

// EntityStats summarizes entity counts by type for metrics collection.
// Adapters may serve it from a full scan; callers sample it on a slow
// tick, not per request.
type EntityStats struct {
	NounsByType map[string]int
	VerbsByType map[string]int
	Tombstones  int
}

// ChangeIterator walks a finite, ordered, restartable sequence of change
// events. Next advances the cursor and reports whether an event was
// produced; Err reports any error encountered during iteration. Callers
// must call Close when done.
type ChangeIterator interface {
	Next() (types.ChangeEvent, bool)
	Err() error
	Close() error
}

// Store is brainy's pluggable durable storage interface for nouns,
// verbs, metadata, the change log, and cluster configuration. Adapters
// must tolerate concurrent writers; they need not linearize writes
// across keys, but each single-key write must be atomic. Distributed
// coordination (leases) is the responsibility of pkg/consensus.
type Store interface {
	SaveNoun(n *types.Noun) error
	GetNoun(id string) (*types.Noun, error)
	ListNounsByType(nounType types.NounType) ([]*types.Noun, error)
	DeleteNoun(id string) error

	SaveVerb(v *types.Verb) error
	GetVerb(id string) (*types.Verb, error)
	GetVerbsBySource(nounID string) ([]*types.Verb, error)
	GetVerbsByTarget(nounID string) ([]*types.Verb, error)
	GetVerbsByType(verbType types.VerbType) ([]*types.Verb, error)
	DeleteVerb(id string) error

	SaveMetadata(key string, value []byte) error
	GetMetadata(key string) ([]byte, error)

	SaveStatistics(stats types.NodeStats) error
	GetStorageStatus() (StorageStatus, error)
	Stats() (EntityStats, error)

	SaveClusterConfig(cfg *types.ClusterConfig) error
	GetClusterConfig() (*types.ClusterConfig, error)

	// AppendChange assigns the event the next sequence number for its
	// writer and appends it atomically, returning the assigned seq.
	AppendChange(event types.ChangeEvent) (uint64, error)
	// ReadChangesSince returns every change event with Seq > since, in
	// ascending order. The returned iterator may be called from any
	// node and re-created at the same seq to restart.
	ReadChangesSince(since uint64) (ChangeIterator, error)

	// SupportsChangeLogFastPath reports whether ReadChangesSince can be
	// served from an index rather than a full scan; callers fall back
	// to full-scan reconciliation when it returns false.
	SupportsChangeLogFastPath() bool

	Close() error
}
