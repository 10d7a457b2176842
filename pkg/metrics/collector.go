package metrics

import "time"

// NodeSnapshot is the minimal per-node view the collector needs to derive
// the brainy_nodes_total gauge.
type NodeSnapshot struct {
	Role   string
	Status string
}

// StatsSource is implemented by the engine. It is defined here, not on the
// engine side, so that pkg/metrics never imports pkg/engine.
type StatsSource interface {
	ListNodes() ([]NodeSnapshot, error)
	ShardCount() int
	NounCountsByType() map[string]int
	VerbCountsByType() map[string]int
	TombstoneCount() int
	IsLeader() bool
	RaftStats() (logIndex uint64, appliedIndex uint64, peers int)
}

// Collector periodically samples a StatsSource and updates the package
// gauges. It does not own any histogram/counter metrics, since those are
// recorded inline by the code performing the operation (searches, inserts,
// migrations, cache accesses).
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a collector over the given stats source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins periodic collection on its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectEntityMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.source.ListNodes()
	if err != nil {
		return
	}

	counts := make(map[[2]string]int)
	for _, n := range nodes {
		counts[[2]string{n.Role, n.Status}]++
	}
	for key, count := range counts {
		NodesTotal.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}

func (c *Collector) collectEntityMetrics() {
	ShardsTotal.Set(float64(c.source.ShardCount()))
	TombstonesTotal.Set(float64(c.source.TombstoneCount()))

	for nounType, count := range c.source.NounCountsByType() {
		NounsTotal.WithLabelValues(nounType).Set(float64(count))
	}
	for verbType, count := range c.source.VerbCountsByType() {
		VerbsTotal.WithLabelValues(verbType).Set(float64(count))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.source.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	logIndex, appliedIndex, peers := c.source.RaftStats()
	RaftLogIndex.Set(float64(logIndex))
	RaftAppliedIndex.Set(float64(appliedIndex))
	RaftPeers.Set(float64(peers))
}
