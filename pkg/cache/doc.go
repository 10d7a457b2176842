// Package cache implements brainy's multi-tier read cache: a bounded hot
// tier evicted by LRU-with-frequency-boost, a TTL-bounded warm tier, and
// an injectable durable-storage fallback. Every entry carries a
// monotonically increasing per-key version and its writer's node id, so
// a cluster of caches can stay eventually coherent: Syncer batches
// locally-originated mutations into invalidate/update/delete/batch
// messages and applies incoming ones last-write-wins, dropping any
// message whose version does not exceed what is already cached.
//
// A background auto-tune loop periodically grows or shrinks the hot
// tier's capacity based on the observed hit ratio and available memory
// headroom; it is suspended whenever the cache is put into frozen mode.
package cache
