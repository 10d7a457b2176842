package types

import (
	"fmt"
	"time"
)

// NounType is a closed enumeration of entity kinds a Noun can carry. The
// zero value is not a valid tag; callers must pick one explicitly.
type NounType string

const (
	NounPerson       NounType = "person"
	NounOrganization NounType = "organization"
	NounLocation     NounType = "location"
	NounDocument     NounType = "document"
	NounConcept      NounType = "concept"
	NounEvent        NounType = "event"
	NounProduct      NounType = "product"
	NounProject      NounType = "project"
	NounTeam         NounType = "team"
	NounAsset        NounType = "asset"
	NounTopic        NounType = "topic"
	NounSkill        NounType = "skill"
	NounDevice       NounType = "device"
	NounAccount      NounType = "account"
	NounTransaction  NounType = "transaction"
	NounMessage      NounType = "message"
	NounImage        NounType = "image"
	NounVideo        NounType = "video"
	NounAudio        NounType = "audio"
	NounCode         NounType = "code"
	NounDataset      NounType = "dataset"
	NounModel        NounType = "model"
	NounSession      NounType = "session"
	NounTicket       NounType = "ticket"
	NounComment      NounType = "comment"
	NounTag          NounType = "tag"
	NounCategory     NounType = "category"
	NounPolicy       NounType = "policy"
	NounContract     NounType = "contract"
	NounFacility     NounType = "facility"
	NounUnknown      NounType = "unknown"
)

// VerbType is a closed enumeration of relation kinds a Verb can carry.
type VerbType string

const (
	VerbRelatesTo   VerbType = "relates_to"
	VerbOwns        VerbType = "owns"
	VerbMemberOf    VerbType = "member_of"
	VerbAuthoredBy  VerbType = "authored_by"
	VerbReferences  VerbType = "references"
	VerbDependsOn   VerbType = "depends_on"
	VerbLocatedAt   VerbType = "located_at"
	VerbSimilarTo   VerbType = "similar_to"
	VerbFollows     VerbType = "follows"
	VerbReportsTo   VerbType = "reports_to"
	VerbCausedBy    VerbType = "caused_by"
	VerbPartOf      VerbType = "part_of"
	VerbUnknown     VerbType = "unknown"
)

// DistanceFunction selects the HNSW distance kernel. Fixed at index
// creation for bit-stable persistence.
type DistanceFunction int

const (
	DistanceCosine DistanceFunction = iota
	DistanceEuclidean
	DistanceManhattan
	DistanceDot
)

// String renders the distance function the way it appears in config files
// and persistence headers.
func (d DistanceFunction) String() string {
	switch d {
	case DistanceCosine:
		return "cosine"
	case DistanceEuclidean:
		return "euclidean"
	case DistanceManhattan:
		return "manhattan"
	case DistanceDot:
		return "dot"
	default:
		return "unknown"
	}
}

// InstanceRole distinguishes read/write separation roles for a node,
// orthogonal to its Raft role (candidate/follower/leader).
type InstanceRole int

const (
	RoleWriter InstanceRole = iota
	RoleReader
	RoleHybrid
)

// ConsistencyLevel governs how a read is served relative to the
// replication log.
type ConsistencyLevel int

const (
	ConsistencyEventual ConsistencyLevel = iota
	ConsistencyStrong
	ConsistencyBounded
)

// RaftRole mirrors the candidate/follower/leader states a node can be in
// from the consensus layer's point of view.
type RaftRole string

const (
	RaftRoleCandidate RaftRole = "candidate"
	RaftRoleFollower  RaftRole = "follower"
	RaftRoleLeader    RaftRole = "leader"
)

// Vector is a fixed-dimension, unit-norm (for cosine distance) embedding.
type Vector []float32

// Noun is a vertex in the entity graph: a stable id carrying a vector
// embedding, a closed type tag, and free-form metadata. Nouns are created
// by Add, mutated only by Update, soft-deleted by Delete (which sets
// Tombstone), and may be Restored while the tombstone still exists.
type Noun struct {
	ID         string         `json:"id"`
	Vector     Vector         `json:"vector"`
	Type       NounType       `json:"type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Service    string         `json:"service,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Tombstone  bool           `json:"tombstone"`
	DeletedAt  time.Time      `json:"deletedAt,omitempty"`
	Version    uint64         `json:"version"`
}

// Verb is a typed directed edge between two Nouns. A Verb is owned
// jointly by its endpoints: deleting either endpoint marks incident verbs
// dangling (Dangling=true) rather than deleting them; dangling verbs are
// pruned at cleanup.
type Verb struct {
	ID         string         `json:"id"`
	Type       VerbType       `json:"type"`
	SourceID   string         `json:"sourceId"`
	TargetID   string         `json:"targetId"`
	Vector     Vector         `json:"vector,omitempty"`
	Weight     float64        `json:"weight"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Service    string         `json:"service,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Tombstone  bool           `json:"tombstone"`
	DeletedAt  time.Time      `json:"deletedAt,omitempty"`
	Dangling   bool           `json:"dangling"`
	Version    uint64         `json:"version"`
}

// ChangeEventOp is the closed set of operations that can appear in the
// change log.
type ChangeEventOp string

const (
	ChangeAdd      ChangeEventOp = "add"
	ChangeUpdate   ChangeEventOp = "update"
	ChangeDelete   ChangeEventOp = "delete"
	ChangeRestore  ChangeEventOp = "restore"
	ChangeRelate   ChangeEventOp = "relate"
	ChangeUnrelate ChangeEventOp = "unrelate"
)

// EntityKind distinguishes which table a ChangeEvent's ID refers to.
type EntityKind string

const (
	EntityNoun EntityKind = "noun"
	EntityVerb EntityKind = "verb"
)

// ChangeEvent is an append-only record in the change log, the single
// source of truth for cross-node synchronisation. Seq is monotonic per
// writer.
type ChangeEvent struct {
	Seq        uint64        `json:"seq"`
	Op         ChangeEventOp `json:"op"`
	EntityKind EntityKind    `json:"entityKind"`
	ID         string        `json:"id"`
	Version    uint64        `json:"version"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ShardAssignment lists the primary node first, followed by replicas, for
// one shard.
type ShardAssignment struct {
	Primary  string   `json:"primary"`
	Replicas []string `json:"replicas"`
}

// ClusterSettings holds tunables that apply cluster-wide.
type ClusterSettings struct {
	ReplicationFactor  int           `json:"replicationFactor"`
	NodeTimeout        time.Duration `json:"nodeTimeout"`
	MaxSoftDeleteAge   time.Duration `json:"maxSoftDeleteAge"`
	AutoCreateMissingNouns bool      `json:"autoCreateMissingNouns"`
	Distance           DistanceFunction `json:"distance"`
	Dimension          int           `json:"dimension"`
}

// ClusterConfig is the single JSON document, held in shared storage, that
// describes cluster membership and shard ownership. Version increments on
// every mutation; consumers use it to detect stale reads.
type ClusterConfig struct {
	Version   uint64                     `json:"version"`
	Updated   time.Time                  `json:"updated"`
	Leader    string                     `json:"leader"`
	Nodes     map[string]*NodeInfo       `json:"nodes"`
	ShardCount int                       `json:"shardCount"`
	Assignments map[string]ShardAssignment `json:"assignments"`
	Settings  ClusterSettings            `json:"settings"`
}

// NodeCapacity is a coarse resource hint used by the shard-assignment
// balancer; it is advisory, not enforced.
type NodeCapacity struct {
	CPU       float64 `json:"cpu"`
	MemoryMB  int64   `json:"memoryMB"`
}

// NodeStats tracks the rolling counters a node reports about itself.
type NodeStats struct {
	Nouns     uint64  `json:"nouns"`
	Verbs     uint64  `json:"verbs"`
	Queries   uint64  `json:"queries"`
	LatencyMs float64 `json:"latencyMs"`
}

// NodeInfo describes one cluster member: its Raft role, the shards it
// currently serves, and its self-reported capacity and statistics. A node
// is alive iff now - LastSeen < nodeTimeout.
type NodeInfo struct {
	ID       string       `json:"id"`
	Endpoint string       `json:"endpoint"`
	Hostname string       `json:"hostname"`
	Started  time.Time    `json:"started"`
	LastSeen time.Time    `json:"lastSeen"`
	Role     RaftRole     `json:"role"`
	Shards   []string     `json:"shards"`
	Capacity NodeCapacity `json:"capacity"`
	Stats    NodeStats    `json:"stats"`
}

// ShardID formats a shard index the way it appears on the wire and in
// storage keys ("shard-007").
func ShardID(index int) string {
	return fmt.Sprintf("shard-%03d", index)
}
