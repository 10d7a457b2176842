package consensus

import (
	"sync"
	"time"

	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

// DefaultNodeTimeout is the default staleness threshold for marking a
// node dead from the registry, per spec.md §4.5.
const DefaultNodeTimeout = 30 * time.Second

// Discovery implements the storage-based bootstrap/discovery protocol
// from spec.md §4.5: on startup, read the shared cluster config; if
// absent, become the sole node and leader; otherwise register and follow
// until a heartbeat arrives. It independently rewrites this node's own
// heartbeat record and prunes peers that have gone stale, the same
// separation of concerns as torua/internal/coordinator's
// shard_registry.go + health_monitor.go being independent of any
// consensus library.
type Discovery struct {
	mu sync.RWMutex

	self    types.NodeInfo
	store   storage.Store
	nodeTO  time.Duration
	heartbeatInterval time.Duration
	discoveryInterval time.Duration

	stopCh chan struct{}

	onDead func(nodeID string)
}

// NewDiscovery builds a Discovery for self, persisting through store.
func NewDiscovery(self types.NodeInfo, store storage.Store, heartbeatInterval, discoveryInterval, nodeTimeout time.Duration) *Discovery {
	if nodeTimeout <= 0 {
		nodeTimeout = DefaultNodeTimeout
	}
	return &Discovery{
		self:              self,
		store:             store,
		nodeTO:            nodeTimeout,
		heartbeatInterval: heartbeatInterval,
		discoveryInterval: discoveryInterval,
		stopCh:            make(chan struct{}),
	}
}

// OnDead registers a callback invoked when a peer is pruned for being
// stale.
func (d *Discovery) OnDead(fn func(nodeID string)) { d.onDead = fn }

// Bootstrap performs the one-time startup read/write described in
// spec.md §4.5: read the cluster config; if absent, initialize the
// cluster with self as the sole node and leader; otherwise append self to
// the node registry.
func (d *Discovery) Bootstrap() (isNewCluster bool, err error) {
	cfg, err := d.store.GetClusterConfig()
	if err != nil || cfg == nil {
		now := time.Now()
		d.self.Started = now
		d.self.LastSeen = now
		d.self.Role = types.RaftRoleLeader
		newCfg := &types.ClusterConfig{
			Version: 1,
			Updated: now,
			Leader:  d.self.ID,
			Nodes:   map[string]*types.NodeInfo{d.self.ID: &d.self},
		}
		if saveErr := d.store.SaveClusterConfig(newCfg); saveErr != nil {
			return false, saveErr
		}
		return true, nil
	}

	if cfg.Nodes == nil {
		cfg.Nodes = make(map[string]*types.NodeInfo)
	}
	now := time.Now()
	d.self.Started = now
	d.self.LastSeen = now
	if d.self.Role == "" {
		d.self.Role = types.RaftRoleFollower
	}
	cfg.Nodes[d.self.ID] = &d.self
	cfg.Version++
	cfg.Updated = now
	return false, d.store.SaveClusterConfig(cfg)
}

// Start launches the heartbeat-rewrite and dead-node-sweep loops.
func (d *Discovery) Start() {
	go d.heartbeatLoop()
	go d.sweepLoop()
}

// Stop halts both background loops.
func (d *Discovery) Stop() { close(d.stopCh) }

func (d *Discovery) heartbeatLoop() {
	ticker := time.NewTicker(d.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if err := d.rewriteSelf(); err != nil {
				log.Logger.Warn().Err(err).Msg("consensus: heartbeat rewrite failed")
			}
		}
	}
}

func (d *Discovery) rewriteSelf() error {
	cfg, err := d.store.GetClusterConfig()
	if err != nil {
		return err
	}
	if cfg.Nodes == nil {
		cfg.Nodes = make(map[string]*types.NodeInfo)
	}
	d.mu.RLock()
	self := d.self
	d.mu.RUnlock()
	self.LastSeen = time.Now()
	cfg.Nodes[self.ID] = &self
	return d.store.SaveClusterConfig(cfg)
}

func (d *Discovery) sweepLoop() {
	ticker := time.NewTicker(d.discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Discovery) sweep() {
	cfg, err := d.store.GetClusterConfig()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("consensus: discovery read failed")
		return
	}
	now := time.Now()
	changed := false
	for id, info := range cfg.Nodes {
		if id == d.self.ID {
			continue
		}
		if now.Sub(info.LastSeen) > d.nodeTO {
			delete(cfg.Nodes, id)
			changed = true
			if d.onDead != nil {
				d.onDead(id)
			}
		}
	}
	if changed {
		cfg.Version++
		cfg.Updated = now
		if err := d.store.SaveClusterConfig(cfg); err != nil {
			log.Logger.Warn().Err(err).Msg("consensus: discovery prune write failed")
		}
	}
}

// Self returns this node's own current NodeInfo, satisfying pkg/api's
// PeerSource interface alongside Peers.
func (d *Discovery) Self() types.NodeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.self
}

// Peers returns every known node other than self, alive or not — callers
// filter by LastSeen themselves (e.g. the election transport only dials
// nodes it believes are alive).
func (d *Discovery) Peers() ([]types.NodeInfo, error) {
	cfg, err := d.store.GetClusterConfig()
	if err != nil {
		return nil, err
	}
	out := make([]types.NodeInfo, 0, len(cfg.Nodes))
	for id, info := range cfg.Nodes {
		if id == d.self.ID {
			continue
		}
		out = append(out, *info)
	}
	return out, nil
}
