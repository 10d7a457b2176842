package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/cache"
	"github.com/brainydb/brainy/pkg/embed"
	"github.com/brainydb/brainy/pkg/events"
	"github.com/brainydb/brainy/pkg/index/hnsw"
	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/metadata"
	"github.com/brainydb/brainy/pkg/metrics"
	"github.com/brainydb/brainy/pkg/partition"
	"github.com/brainydb/brainy/pkg/query"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

// vectorEpsilon is the tolerance on ‖vector‖ = 1 from spec.md §3.
const vectorEpsilon = 1e-4

// Mode is the operational mode a node runs under, orthogonal to its Raft
// role: it governs which of Add/Update/Delete/Restore/Relate/Unrelate/Find
// are permitted locally (spec.md §7 ModeViolation).
type Mode int

const (
	ModeHybrid Mode = iota
	ModeReadOnly
	ModeWriteOnly
	ModeFrozen
)

// Config fixes an Engine's fixed-at-construction parameters: vector
// dimension and distance kernel (bit-stable, per spec.md §4.1), shard
// count (fixed at cluster init, per spec.md §3), and the collaborators
// it is built from.
type Config struct {
	NodeID     string
	Mode       Mode
	Dimension  int
	Distance   types.DistanceFunction
	ShardCount int

	AutoCreateMissingNouns bool

	HNSW  hnsw.Config
	Cache cache.Config

	Embedder embed.Embedder
}

func (c *Config) setDefaults() {
	if c.ShardCount <= 0 {
		c.ShardCount = 1
	}
	c.HNSW.Dimension = c.Dimension
	c.HNSW.Distance = c.Distance
}

// Engine is brainy's single composition root: one instance per node,
// holding the store, per-shard HNSW graphs, metadata index, cache, and
// query planner it was built from. Every externally visible mutation
// goes through writeGuard; every search goes through searchGuard.
type Engine struct {
	mu   sync.RWMutex
	mode Mode

	cfg         Config
	nodeID      string
	store       storage.Store
	partitioner *partition.HashPartitioner
	metaIndex   *metadata.Index
	cache       *cache.Cache
	broker      *events.Broker
	planner     *query.Planner
	logger      zerolog.Logger

	shardsMu sync.RWMutex
	shards   map[int]*hnsw.HNSW
}

// New builds an Engine over store, publishing lifecycle events to
// broker (which the caller starts/stops). broker may be nil, in which
// case events are silently dropped.
func New(store storage.Store, broker *events.Broker, cfg Config) (*Engine, error) {
	if cfg.Dimension <= 0 {
		return nil, brainyerr.New(brainyerr.InvalidArgument, "engine: dimension must be positive")
	}
	cfg.setDefaults()

	e := &Engine{
		mode:        cfg.Mode,
		cfg:         cfg,
		nodeID:      cfg.NodeID,
		store:       store,
		partitioner: partition.New(cfg.ShardCount),
		metaIndex:   metadata.New(),
		broker:      broker,
		logger:      log.WithComponent("engine"),
		shards:      make(map[int]*hnsw.HNSW),
	}
	e.cache = cache.New(cfg.Cache, e.cacheFallback, nil)
	e.cache.Start()

	e.planner = &query.Planner{
		Vector:       &query.VectorStrategy{Index: e, Embedder: cfg.Embedder, Store: e},
		Metadata:     &query.MetadataStrategy{Index: e.metaIndex, Store: e},
		Graph:        &query.GraphStrategy{Store: e},
		DirectLookup: e.directLookup,
	}
	return e, nil
}

// Close stops the cache auto-tune/sync loops. It does not close store;
// the caller owns the store's lifetime.
func (e *Engine) Close() error {
	e.cache.Stop()
	return nil
}

// Cache exposes the engine's multi-tier cache so a hosting process can
// wire it to a distributed cache.Syncer; the engine itself never talks
// to the network.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// MetaIndex exposes the engine's metadata index so a hosting process can
// wire it to pkg/cleanup's tombstone sweep, which must remove index
// entries alongside the entities they describe.
func (e *Engine) MetaIndex() *metadata.Index { return e.metaIndex }

// Store exposes the engine's storage adapter so a hosting process can
// wire replication and migration, which both read/write entities
// directly rather than through Add/Update/Delete's guards.
func (e *Engine) Store() storage.Store { return e.store }

// Mode reports the engine's current operational mode.
func (e *Engine) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetMode changes the operational mode at runtime, e.g. in response to a
// cluster-config mutation promoting a reader to hybrid.
func (e *Engine) SetMode(m Mode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
}

func (e *Engine) writeGuard() error {
	switch e.Mode() {
	case ModeReadOnly:
		return brainyerr.New(brainyerr.ModeViolation, "engine: node is read-only; writes are refused")
	case ModeFrozen:
		return brainyerr.New(brainyerr.ModeViolation, "engine: node is frozen; writes are refused")
	}
	return nil
}

func (e *Engine) searchGuard() query.Guard {
	m := e.Mode()
	return query.Guard{
		ReadOnly:  m == ModeReadOnly,
		WriteOnly: m == ModeWriteOnly,
		Frozen:    m == ModeFrozen,
	}
}

func (e *Engine) shardFor(id string) *hnsw.HNSW {
	idx := e.partitioner.ShardIndex(id)
	e.shardsMu.RLock()
	s, ok := e.shards[idx]
	e.shardsMu.RUnlock()
	if ok {
		return s
	}
	e.shardsMu.Lock()
	defer e.shardsMu.Unlock()
	if s, ok = e.shards[idx]; ok {
		return s
	}
	s, err := hnsw.New(e.cfg.HNSW)
	if err != nil {
		// Config is validated at construction; setDefaults fills in the
		// only fields hnsw.New can reject.
		panic(fmt.Sprintf("engine: building shard %d: %v", idx, err))
	}
	e.shards[idx] = s
	return s
}

// Search implements query.VectorIndex by fanning Search out across every
// local shard and merging the results, satisfying spec.md §4.7's
// "parallel: HNSW search on relevant shards" for the single-process case
// (cross-node fan-out is the caller's — pkg/api's — concern).
func (e *Engine) Search(q []float32, k int, filter hnsw.Filter) ([]hnsw.Match, error) {
	e.shardsMu.RLock()
	shards := make([]*hnsw.HNSW, 0, len(e.shards))
	for _, s := range e.shards {
		shards = append(shards, s)
	}
	e.shardsMu.RUnlock()

	var all []hnsw.Match
	for _, s := range shards {
		matches, err := s.Search(q, k, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, matches...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })
	if k > 0 && len(all) > k {
		all = all[:k]
	}
	return all, nil
}

// Dimension implements query.VectorIndex.
func (e *Engine) Dimension() int { return e.cfg.Dimension }

func (e *Engine) directLookup(id string) (query.Match, bool, error) {
	n, err := e.GetNoun(id)
	if err != nil {
		if brainyerr.Is(err, brainyerr.NotFound) {
			return query.Match{}, false, nil
		}
		return query.Match{}, false, err
	}
	return query.Match{ID: n.ID}, true, nil
}

// GetNoun implements query.GraphStore. It reads the store directly; the
// engine's cache is not consulted.
func (e *Engine) GetNoun(id string) (*types.Noun, error) {
	return e.store.GetNoun(id)
}

// GetVerbsBySource implements query.GraphStore.
func (e *Engine) GetVerbsBySource(nounID string) ([]*types.Verb, error) {
	return e.store.GetVerbsBySource(nounID)
}

// GetVerbsByTarget implements query.GraphStore.
func (e *Engine) GetVerbsByTarget(nounID string) ([]*types.Verb, error) {
	return e.store.GetVerbsByTarget(nounID)
}

func (e *Engine) cacheFallback(key string) ([]byte, bool) {
	return nil, false
}

// normalizeVector enforces the ‖v‖ = 1 ± ε invariant on the write path:
// a vector already within tolerance is returned unchanged (so re-saving
// a stored vector stays bit-identical), anything else is scaled to unit
// length. Zero, NaN, or infinite vectors cannot be normalized and are
// rejected.
func (e *Engine) normalizeVector(v types.Vector) (types.Vector, error) {
	if len(v) != e.cfg.Dimension {
		return nil, brainyerr.Newf(brainyerr.InvalidArgument, "engine: vector has dimension %d, index requires %d", len(v), e.cfg.Dimension)
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, brainyerr.New(brainyerr.InvalidArgument, "engine: vector must be finite and non-zero")
	}
	if math.Abs(norm-1) <= vectorEpsilon {
		return v, nil
	}
	out := make(types.Vector, len(v))
	for i, x := range v {
		out[i] = x / float32(norm)
	}
	return out, nil
}

// Add creates a noun: validates its vector, assigns an id if absent,
// inserts it into its shard's HNSW graph, indexes its metadata, appends
// a change event, and publishes EventNounAdded.
func (e *Engine) Add(ctx context.Context, n *types.Noun) error {
	if err := e.writeGuard(); err != nil {
		return err
	}
	vec, err := e.normalizeVector(n.Vector)
	if err != nil {
		return err
	}
	n.Vector = vec
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if _, err := e.store.GetNoun(n.ID); err == nil {
		return brainyerr.Newf(brainyerr.InvalidArgument, "engine: noun %q already exists", n.ID)
	}

	timer := metrics.NewTimer()
	now := time.Now()
	n.CreatedAt = now
	n.UpdatedAt = now
	n.Version = 1

	shard := e.shardFor(n.ID)
	if err := shard.Insert(n.ID, n.Vector); err != nil {
		metrics.InsertsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("engine: hnsw insert: %w", err)
	}
	if err := e.store.SaveNoun(n); err != nil {
		metrics.InsertsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("engine: save noun: %w", err)
	}
	e.indexMetadata(n.ID, n.Metadata)
	if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeAdd, EntityKind: types.EntityNoun, ID: n.ID, Version: n.Version, Timestamp: now}); err != nil {
		e.logger.Warn().Err(err).Str("id", n.ID).Msg("engine: append change failed")
	}
	metrics.InsertsTotal.WithLabelValues("ok").Inc()
	timer.ObserveDurationVec(metrics.APIRequestDuration, "add")
	e.publish(events.EventNounAdded, n.ID)
	return nil
}

// Update mutates an existing noun's mutable fields (vector, type,
// metadata, service). A zero n.Version skips the optimistic check;
// otherwise n.Version must match the stored version or the write is
// refused as a ConcurrencyConflict.
func (e *Engine) Update(ctx context.Context, n *types.Noun) error {
	if err := e.writeGuard(); err != nil {
		return err
	}
	vec, err := e.normalizeVector(n.Vector)
	if err != nil {
		return err
	}
	n.Vector = vec
	existing, err := e.store.GetNoun(n.ID)
	if err != nil {
		return err
	}
	if n.Version != 0 && n.Version != existing.Version {
		return brainyerr.Newf(brainyerr.ConcurrencyConflict, "engine: noun %q version %d does not match stored version %d", n.ID, n.Version, existing.Version)
	}

	shard := e.shardFor(n.ID)
	if err := shard.Delete(n.ID); err != nil {
		return fmt.Errorf("engine: hnsw delete during update: %w", err)
	}
	if err := shard.Insert(n.ID, n.Vector); err != nil {
		return fmt.Errorf("engine: hnsw insert during update: %w", err)
	}
	e.metaIndex.RemoveID(n.ID, fieldsOf(existing.Metadata))
	e.indexMetadata(n.ID, n.Metadata)

	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = time.Now()
	n.Tombstone = existing.Tombstone
	n.DeletedAt = existing.DeletedAt
	n.Version = existing.Version + 1
	if err := e.store.SaveNoun(n); err != nil {
		return fmt.Errorf("engine: save noun: %w", err)
	}
	if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeUpdate, EntityKind: types.EntityNoun, ID: n.ID, Version: n.Version, Timestamp: n.UpdatedAt}); err != nil {
		e.logger.Warn().Err(err).Str("id", n.ID).Msg("engine: append change failed")
	}
	e.cache.Invalidate(n.ID)
	e.publish(events.EventNounUpdated, n.ID)
	return nil
}

// Delete soft-deletes a noun: it sets the tombstone and delete-at
// timestamp but leaves the HNSW entry and metadata index in place, so
// excludeDeleted search filters (not index structure) enforce
// invisibility until the cleanup loop physically removes it after
// maxSoftDeleteAge.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.writeGuard(); err != nil {
		return err
	}
	n, err := e.store.GetNoun(id)
	if err != nil {
		if brainyerr.Is(err, brainyerr.NotFound) {
			return nil // deleting an unknown id is a no-op
		}
		return err
	}
	if n.Tombstone {
		return nil
	}
	n.Tombstone = true
	n.DeletedAt = time.Now()
	n.UpdatedAt = n.DeletedAt
	n.Version++
	if err := e.store.SaveNoun(n); err != nil {
		return fmt.Errorf("engine: save noun: %w", err)
	}
	if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeDelete, EntityKind: types.EntityNoun, ID: id, Version: n.Version, Timestamp: n.DeletedAt}); err != nil {
		e.logger.Warn().Err(err).Str("id", id).Msg("engine: append change failed")
	}
	e.cache.Invalidate(id)
	e.publish(events.EventNounDeleted, id)
	return nil
}

// Restore clears a noun's tombstone. Restoring a noun that was never
// deleted is an InvalidArgument, per spec.md §8's boundary behaviour.
func (e *Engine) Restore(ctx context.Context, id string) error {
	if err := e.writeGuard(); err != nil {
		return err
	}
	n, err := e.store.GetNoun(id)
	if err != nil {
		return err
	}
	if !n.Tombstone {
		return brainyerr.Newf(brainyerr.InvalidArgument, "engine: noun %q is not tombstoned", id)
	}
	n.Tombstone = false
	n.DeletedAt = time.Time{}
	n.UpdatedAt = time.Now()
	n.Version++
	if err := e.store.SaveNoun(n); err != nil {
		return fmt.Errorf("engine: save noun: %w", err)
	}
	if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeRestore, EntityKind: types.EntityNoun, ID: id, Version: n.Version, Timestamp: n.UpdatedAt}); err != nil {
		e.logger.Warn().Err(err).Str("id", id).Msg("engine: append change failed")
	}
	e.cache.Invalidate(id)
	e.publish(events.EventNounRestored, id)
	return nil
}

// Relate creates a verb between two nouns, creating either endpoint
// implicitly when AutoCreateMissingNouns is set (spec.md §3), otherwise
// rejecting the write with NotFound.
func (e *Engine) Relate(ctx context.Context, v *types.Verb) error {
	if err := e.writeGuard(); err != nil {
		return err
	}
	if v.SourceID == "" || v.TargetID == "" {
		return brainyerr.New(brainyerr.InvalidArgument, "engine: verb requires sourceId and targetId")
	}
	for _, nounID := range []string{v.SourceID, v.TargetID} {
		if _, err := e.store.GetNoun(nounID); err != nil {
			if !brainyerr.Is(err, brainyerr.NotFound) {
				return err
			}
			if !e.cfg.AutoCreateMissingNouns {
				return brainyerr.Newf(brainyerr.NotFound, "engine: noun %q does not exist", nounID)
			}
			placeholder := &types.Noun{ID: nounID, Type: types.NounUnknown, Vector: make(types.Vector, e.cfg.Dimension)}
			if e.cfg.Dimension > 0 {
				placeholder.Vector[0] = 1
			}
			if err := e.Add(ctx, placeholder); err != nil {
				return fmt.Errorf("engine: auto-create noun %q: %w", nounID, err)
			}
		}
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now
	v.Version = 1
	if err := e.store.SaveVerb(v); err != nil {
		return fmt.Errorf("engine: save verb: %w", err)
	}
	if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeRelate, EntityKind: types.EntityVerb, ID: v.ID, Version: v.Version, Timestamp: now}); err != nil {
		e.logger.Warn().Err(err).Str("id", v.ID).Msg("engine: append change failed")
	}
	e.publish(events.EventVerbAdded, v.ID)
	return nil
}

// Unrelate removes a verb edge outright; unlike noun deletion, verbs
// have no restore path, so this is a hard delete rather than a
// tombstone.
func (e *Engine) Unrelate(ctx context.Context, id string) error {
	if err := e.writeGuard(); err != nil {
		return err
	}
	if _, err := e.store.GetVerb(id); err != nil {
		return err
	}
	if err := e.store.DeleteVerb(id); err != nil {
		return fmt.Errorf("engine: delete verb: %w", err)
	}
	if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeUnrelate, EntityKind: types.EntityVerb, ID: id, Timestamp: time.Now()}); err != nil {
		e.logger.Warn().Err(err).Str("id", id).Msg("engine: append change failed")
	}
	e.publish(events.EventVerbDeleted, id)
	return nil
}

// Find answers a query.Request through the triple-fusion planner,
// enforcing the search-side operational-mode guard first.
func (e *Engine) Find(ctx context.Context, req query.Request) (*query.Result, error) {
	timer := metrics.NewTimer()
	result, err := e.planner.Plan(ctx, req, e.searchGuard())
	mode := string(req.Mode)
	if mode == "" {
		mode = "auto"
	}
	timer.ObserveDurationVec(metrics.SearchLatency, mode)
	return result, err
}

func (e *Engine) publish(t events.EventType, id string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    t,
		Message: id,
	})
}

// indexMetadata adds one (field, value) entry per scalar top-level
// metadata field, the same flattening metadataFields uses in pkg/cleanup
// for the symmetric RemoveID call.
func (e *Engine) indexMetadata(id string, m map[string]any) {
	for field, values := range fieldsOf(m) {
		for _, v := range values {
			e.metaIndex.Add(id, field, v)
		}
	}
}

func fieldsOf(m map[string]any) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = []string{fmt.Sprint(v)}
	}
	return out
}
