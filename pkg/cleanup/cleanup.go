package cleanup

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/metadata"
	"github.com/brainydb/brainy/pkg/metrics"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

// Defaults per spec.md §4.8.
const (
	DefaultInterval        = 15 * time.Minute
	DefaultMaxSoftDeleteAge = 1 * time.Hour
)

// LeaseHolder reports whether this node currently holds cluster
// leadership; only the leader runs physical cleanup, the same
// single-writer discipline pkg/migration relies on for switching shard
// assignments.
type LeaseHolder interface {
	IsLeader() bool
}

// Config tunes a Cleanup loop; zero values fall back to spec defaults.
type Config struct {
	Interval        time.Duration
	MaxSoftDeleteAge time.Duration
}

// Cleanup is the periodic soft-delete garbage collector. Its
// ticker-loop/stopCh shape follows the teacher's
// pkg/reconciler/reconciler.go; the sub-steps it runs each cycle
// (sweep tombstoned nouns, then dangling verbs) mirror that file's
// reconcileNodes/reconcileContainers split.
type Cleanup struct {
	mu sync.Mutex

	store         storage.Store
	metadataIndex *metadata.Index
	lease         LeaseHolder

	interval time.Duration
	maxAge   time.Duration

	logger zerolog.Logger
	stopCh chan struct{}
}

// New builds a Cleanup loop.
func New(store storage.Store, metadataIndex *metadata.Index, lease LeaseHolder, cfg Config) *Cleanup {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxSoftDeleteAge <= 0 {
		cfg.MaxSoftDeleteAge = DefaultMaxSoftDeleteAge
	}
	return &Cleanup{
		store:         store,
		metadataIndex: metadataIndex,
		lease:         lease,
		interval:      cfg.Interval,
		maxAge:        cfg.MaxSoftDeleteAge,
		logger:        log.WithComponent("cleanup"),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background ticker loop.
func (c *Cleanup) Start() { go c.run() }

// Stop halts the loop.
func (c *Cleanup) Stop() { close(c.stopCh) }

func (c *Cleanup) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	c.logger.Info().Msg("cleanup started")
	for {
		select {
		case <-ticker.C:
			if err := c.RunOnce(); err != nil {
				c.logger.Error().Err(err).Msg("cleanup cycle failed")
			}
		case <-c.stopCh:
			c.logger.Info().Msg("cleanup stopped")
			return
		}
	}
}

// RunOnce performs a single cleanup cycle: skip quietly if this node
// isn't leader (losing the lease mid-cycle isn't an error, just means
// nothing gets pruned this round), else physically remove aged
// tombstones and then prune verbs left dangling by gone endpoints.
func (c *Cleanup) RunOnce() error {
	if !c.lease.IsLeader() {
		c.logger.Debug().Msg("cleanup: not leader, skipping cycle")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	nounIDs, verbIDs, err := c.universe()
	if err != nil {
		return fmt.Errorf("cleanup: scan: %w", err)
	}

	now := time.Now()
	goneNouns := make(map[string]bool, len(nounIDs))
	for _, id := range nounIDs {
		n, err := c.store.GetNoun(id)
		if err != nil || n == nil {
			goneNouns[id] = true
			continue
		}
		if !n.Tombstone {
			goneNouns[id] = false
			continue
		}
		if now.Sub(n.DeletedAt) <= c.maxAge {
			goneNouns[id] = false
			continue
		}
		if err := c.store.DeleteNoun(id); err != nil {
			c.logger.Warn().Err(err).Str("noun", id).Msg("cleanup: delete noun failed")
			goneNouns[id] = false
			continue
		}
		c.metadataIndex.RemoveID(id, metadataFields(n.Metadata))
		goneNouns[id] = true
	}

	for _, id := range verbIDs {
		v, err := c.store.GetVerb(id)
		if err != nil || v == nil {
			continue
		}
		if v.Tombstone && now.Sub(v.DeletedAt) > c.maxAge {
			if err := c.store.DeleteVerb(id); err != nil {
				c.logger.Warn().Err(err).Str("verb", id).Msg("cleanup: delete verb failed")
			}
			continue
		}
		sourceGone := goneNouns[v.SourceID]
		targetGone := goneNouns[v.TargetID]
		if sourceGone || targetGone {
			if err := c.store.DeleteVerb(id); err != nil {
				c.logger.Warn().Err(err).Str("verb", id).Msg("cleanup: delete dangling verb failed")
			}
			continue
		}
		if dangling := c.isDangling(v); dangling != v.Dangling {
			v.Dangling = dangling
			if err := c.store.SaveVerb(v); err != nil {
				c.logger.Warn().Err(err).Str("verb", id).Msg("cleanup: update dangling flag failed")
			}
		}
	}

	return nil
}

// isDangling reports whether a verb has at least one tombstoned
// endpoint that hasn't yet aged past maxAge (once it does, RunOnce
// deletes the verb outright rather than leaving it marked).
func (c *Cleanup) isDangling(v *types.Verb) bool {
	src, _ := c.store.GetNoun(v.SourceID)
	tgt, _ := c.store.GetNoun(v.TargetID)
	return (src != nil && src.Tombstone) || (tgt != nil && tgt.Tombstone)
}

// universe replays the change log for the full set of noun/verb ids ever
// seen, the same approach pkg/migration uses to enumerate shard
// membership against any Store implementation.
func (c *Cleanup) universe() (nounIDs, verbIDs []string, err error) {
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

func metadataFields(m map[string]any) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = []string{fmt.Sprint(v)}
	}
	return out
}
