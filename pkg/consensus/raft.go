package consensus

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Config configures a RaftNode.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// RaftNode wraps hashicorp/raft to drive a ClusterFSM, exactly the way
// the teacher's pkg/manager.Manager wraps Raft to drive its WarrenFSM:
// same transport/log-store/stable-store/snapshot-store construction,
// generalized to brainy's ClusterFSM instead of the teacher's
// node/service/task FSM.
type RaftNode struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *ClusterFSM
	store storage.Store
}

// NewRaftNode builds a RaftNode. The caller still must call Bootstrap or
// Join before the node participates in the cluster.
func NewRaftNode(cfg Config, store storage.Store) (*RaftNode, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "consensus: create data dir", err)
	}
	return &RaftNode{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      NewClusterFSM(store),
		store:    store,
	}, nil
}

func (n *RaftNode) newRaft() (*raft.Raft, error) {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(n.nodeID)

	// Tuned for LAN/edge failover rather than Raft's conservative WAN
	// defaults, same rationale and values as the teacher's Bootstrap/Join.
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("consensus: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("consensus: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("consensus: create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("consensus: create raft: %w", err)
	}
	return r, nil
}

// Bootstrap initializes a brand-new single-node cluster with this node as
// the sole voter and leader.
func (n *RaftNode) Bootstrap() error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	cfg := raft.Configuration{Servers: []raft.Server{
		{ID: raft.ServerID(n.nodeID), Address: raft.ServerAddress(n.bindAddr)},
	}}
	if err := n.raft.BootstrapCluster(cfg).Error(); err != nil {
		return fmt.Errorf("consensus: bootstrap cluster: %w", err)
	}
	return nil
}

// Join starts Raft in follower mode and asks the current leader to add
// this node as a voter via the HTTP control plane's /rpc envelope.
func (n *RaftNode) Join(requestJoin func(nodeID, addr string) error) error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	log.Info("consensus: requesting to join existing cluster")
	if err := requestJoin(n.nodeID, n.bindAddr); err != nil {
		return fmt.Errorf("consensus: join request: %w", err)
	}
	return nil
}

// AddVoter adds a peer as a Raft voter. Only the leader may call this.
func (n *RaftNode) AddVoter(nodeID, addr string) error {
	if !n.IsLeader() {
		return brainyerr.Newf(brainyerr.ModeViolation, "consensus: not leader, current leader is %s", n.LeaderAddr())
	}
	f := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	if err := f.Error(); err != nil {
		return brainyerr.Wrap(brainyerr.ConsensusTimeout, "consensus: add voter", err)
	}
	return nil
}

// RemoveServer removes a peer from the Raft configuration. Only the
// leader may call this.
func (n *RaftNode) RemoveServer(nodeID string) error {
	if !n.IsLeader() {
		return brainyerr.New(brainyerr.ModeViolation, "consensus: not leader")
	}
	f := n.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := f.Error(); err != nil {
		return brainyerr.Wrap(brainyerr.ConsensusTimeout, "consensus: remove server", err)
	}
	return nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (n *RaftNode) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current Raft leader, or "".
func (n *RaftNode) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// Propose marshals data and applies it as a Command through Raft. Only
// the leader may call this; followers get ErrNotLeader back from Raft,
// surfaced here as ConsensusTimeout per spec.md §7 (the caller decides
// whether to retry against the new leader).
func (n *RaftNode) Propose(op string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return brainyerr.Wrap(brainyerr.InvalidArgument, "consensus: marshal command payload", err)
	}
	cmd := Command{Op: op, Data: payload}
	bytes, err := json.Marshal(cmd)
	if err != nil {
		return brainyerr.Wrap(brainyerr.InvalidArgument, "consensus: marshal command", err)
	}

	f := n.raft.Apply(bytes, 10*time.Second)
	if err := f.Error(); err != nil {
		return brainyerr.Wrap(brainyerr.ConsensusTimeout, "consensus: propose", err)
	}
	if res := f.Response(); res != nil {
		if err, ok := res.(error); ok {
			return brainyerr.Wrap(brainyerr.StorageFailure, "consensus: apply rejected", err)
		}
	}
	return nil
}

// Stats returns the raw Raft stats map (applied index, last log index,
// term, etc.) for the metrics collector and /health endpoint.
func (n *RaftNode) Stats() map[string]string {
	if n.raft == nil {
		return nil
	}
	return n.raft.Stats()
}

// Shutdown gracefully stops the Raft instance.
func (n *RaftNode) Shutdown() error {
	if n.raft == nil {
		return nil
	}
	return n.raft.Shutdown().Error()
}
