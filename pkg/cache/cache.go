package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/brainydb/brainy/pkg/log"
)

// StorageFallback fetches a key from the durable storage tier when it is
// absent from both the hot and warm caches.
type StorageFallback func(key string) ([]byte, bool)

// MemoryHeadroomFunc reports a 0..1 fraction of free memory available,
// consulted by the auto-tune loop before growing the hot tier.
type MemoryHeadroomFunc func() float64

// Config fixes the cache's tuning knobs. All durations and sizes have
// sane defaults applied by New.
type Config struct {
	NodeID string

	// HotMaxSize bounds the hot tier; eviction begins once occupancy
	// exceeds HotEvictionThreshold * HotMaxSize.
	HotMaxSize            int
	HotEvictionThreshold  float64
	WarmTTL               time.Duration
	AutoTuneInterval      time.Duration
	AutoTuneTargetHitRate float64
	SyncInterval          time.Duration
	MaxSyncBatchSize      int
}

func (c *Config) setDefaults() {
	if c.HotMaxSize <= 0 {
		c.HotMaxSize = 10_000
	}
	if c.HotEvictionThreshold <= 0 {
		c.HotEvictionThreshold = 0.9
	}
	if c.WarmTTL <= 0 {
		c.WarmTTL = 10 * time.Minute
	}
	if c.AutoTuneInterval <= 0 {
		c.AutoTuneInterval = 30 * time.Second
	}
	if c.AutoTuneTargetHitRate <= 0 {
		c.AutoTuneTargetHitRate = 0.8
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 2 * time.Second
	}
	if c.MaxSyncBatchSize <= 0 {
		c.MaxSyncBatchSize = 100
	}
}

type hotEntry struct {
	key        string
	value      []byte
	version    uint64
	nodeID     string
	freq       int
	lastAccess time.Time
}

type warmEntry struct {
	value     []byte
	version   uint64
	nodeID    string
	expiresAt time.Time
}

// Cache is brainy's three-tier read cache: a bounded hot tier evicted by
// LRU-with-frequency-boost, a TTL-bounded warm tier, and an optional
// storage fallback. Every entry carries a monotonically increasing
// per-key version and its writer's node id so remote invalidations can
// be applied last-write-wins.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	hot     map[string]*hotEntry
	warm    map[string]*warmEntry
	storage StorageFallback
	headroom MemoryHeadroomFunc

	hits   int64
	misses int64

	frozen bool
	stopCh chan struct{}

	onSync func(SyncMessage)
}

// New creates a cache. storage and headroom may be nil; a nil storage
// fallback means Get only consults the hot and warm tiers.
func New(cfg Config, storage StorageFallback, headroom MemoryHeadroomFunc) *Cache {
	cfg.setDefaults()
	return &Cache{
		cfg:      cfg,
		hot:      make(map[string]*hotEntry),
		warm:     make(map[string]*warmEntry),
		storage:  storage,
		headroom: headroom,
		stopCh:   make(chan struct{}),
	}
}

// SetSyncHook registers a callback invoked with every locally-originated
// mutation, so a distributed-coherence layer (see sync.go) can fan it
// out to peers without this package depending on the transport.
func (c *Cache) SetSyncHook(fn func(SyncMessage)) {
	c.mu.Lock()
	c.onSync = fn
	c.mu.Unlock()
}

// Get returns a value and its version, checking hot, then warm, then the
// storage fallback. A storage hit is promoted into the hot tier.
func (c *Cache) Get(key string) ([]byte, uint64, bool) {
	c.mu.Lock()
	if e, ok := c.hot[key]; ok {
		e.freq++
		e.lastAccess = time.Now()
		c.hits++
		val, ver := e.value, e.version
		c.mu.Unlock()
		return val, ver, true
	}

	if e, ok := c.warm[key]; ok {
		if time.Now().Before(e.expiresAt) {
			c.hits++
			val, ver, nodeID := e.value, e.version, e.nodeID
			c.promoteToHotLocked(key, val, ver, nodeID)
			c.mu.Unlock()
			return val, ver, true
		}
		delete(c.warm, key)
	}
	c.misses++
	storage := c.storage
	c.mu.Unlock()

	if storage == nil {
		return nil, 0, false
	}
	val, ok := storage(key)
	if !ok {
		return nil, 0, false
	}
	c.mu.Lock()
	c.promoteToHotLocked(key, val, 0, c.cfg.NodeID)
	c.mu.Unlock()
	return val, 0, true
}

// Set writes value into the hot tier (ttl == 0) or the warm tier (ttl >
// 0), bumping the per-key version, and notifies the sync hook if one is
// registered.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	version := c.nextVersionLocked(key)
	if ttl > 0 {
		c.warm[key] = &warmEntry{value: value, version: version, nodeID: c.cfg.NodeID, expiresAt: time.Now().Add(ttl)}
		delete(c.hot, key)
	} else {
		c.setHotLocked(key, value, version, c.cfg.NodeID)
	}
	c.evictHotLocked()
	hook := c.onSync
	c.mu.Unlock()

	if hook != nil {
		hook(SyncMessage{Op: SyncUpdate, Key: key, Version: version, NodeID: c.cfg.NodeID, Timestamp: time.Now()})
	}
}

// Invalidate drops key from both tiers and notifies the sync hook.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	version := c.nextVersionLocked(key)
	delete(c.hot, key)
	delete(c.warm, key)
	hook := c.onSync
	c.mu.Unlock()

	if hook != nil {
		hook(SyncMessage{Op: SyncInvalidate, Key: key, Version: version, NodeID: c.cfg.NodeID, Timestamp: time.Now()})
	}
}

// Clear empties both tiers without emitting sync messages; it is a local
// operation (e.g. on shard migration completion), not a cluster-wide one.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot = make(map[string]*hotEntry)
	c.warm = make(map[string]*warmEntry)
}

// ApplyRemote applies an incoming distributed-coherence message. An
// entry is dropped or replaced only if the incoming version is strictly
// greater than the local one; messages from the local node are ignored
// by the caller (sync.go) before reaching here.
func (c *Cache) ApplyRemote(msg SyncMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	localVersion := uint64(0)
	if e, ok := c.hot[msg.Key]; ok {
		localVersion = e.version
	} else if e, ok := c.warm[msg.Key]; ok {
		localVersion = e.version
	}
	if msg.Version <= localVersion {
		return
	}

	switch msg.Op {
	case SyncInvalidate, SyncDelete:
		delete(c.hot, msg.Key)
		delete(c.warm, msg.Key)
	case SyncUpdate:
		delete(c.hot, msg.Key)
		delete(c.warm, msg.Key)
	}
}

// HitRatio returns the lifetime hit ratio observed by Get.
func (c *Cache) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// HotSize returns the current hot-tier occupancy.
func (c *Cache) HotSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hot)
}

// SetFrozen disables the auto-tune loop while true, matching the
// engine-wide frozen operational mode.
func (c *Cache) SetFrozen(frozen bool) {
	c.mu.Lock()
	c.frozen = frozen
	c.mu.Unlock()
}

// Start begins the auto-tune background loop.
func (c *Cache) Start() {
	go c.autoTuneLoop()
}

// Stop halts the auto-tune loop.
func (c *Cache) Stop() {
	close(c.stopCh)
}

func (c *Cache) autoTuneLoop() {
	ticker := time.NewTicker(c.cfg.AutoTuneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.autoTune()
		case <-c.stopCh:
			return
		}
	}
}

// autoTune grows hot capacity when the hit ratio is under target and
// memory headroom allows it, and shrinks it otherwise.
func (c *Cache) autoTune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return
	}

	total := c.hits + c.misses
	if total == 0 {
		return
	}
	ratio := float64(c.hits) / float64(total)

	headroom := 1.0
	if c.headroom != nil {
		headroom = c.headroom()
	}

	switch {
	case ratio < c.cfg.AutoTuneTargetHitRate && headroom > 0.2:
		c.cfg.HotMaxSize = int(float64(c.cfg.HotMaxSize) * 1.25)
		log.Debug("cache auto-tune: raised hot capacity")
	default:
		c.cfg.HotMaxSize = int(float64(c.cfg.HotMaxSize) * 0.9)
		c.evictHotLocked()
		log.Debug("cache auto-tune: lowered hot capacity")
	}
}

func (c *Cache) nextVersionLocked(key string) uint64 {
	if e, ok := c.hot[key]; ok {
		return e.version + 1
	}
	if e, ok := c.warm[key]; ok {
		return e.version + 1
	}
	return 1
}

func (c *Cache) setHotLocked(key string, value []byte, version uint64, nodeID string) {
	c.hot[key] = &hotEntry{key: key, value: value, version: version, nodeID: nodeID, lastAccess: time.Now()}
}

func (c *Cache) promoteToHotLocked(key string, value []byte, version uint64, nodeID string) {
	c.setHotLocked(key, value, version, nodeID)
	c.evictHotLocked()
}

// evictHotLocked enforces HotMaxSize using LRU with a frequency boost:
// candidates are ranked by (freq ascending, lastAccess ascending), so an
// entry accessed often survives even if it hasn't been touched most
// recently, while a cold, rarely-used entry is evicted first.
func (c *Cache) evictHotLocked() {
	threshold := int(float64(c.cfg.HotMaxSize) * c.cfg.HotEvictionThreshold)
	if threshold <= 0 {
		threshold = c.cfg.HotMaxSize
	}
	if len(c.hot) <= threshold {
		return
	}

	candidates := make([]*hotEntry, 0, len(c.hot))
	for _, e := range c.hot {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq < candidates[j].freq
		}
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	toEvict := len(c.hot) - threshold
	for i := 0; i < toEvict && i < len(candidates); i++ {
		delete(c.hot, candidates[i].key)
	}
}
