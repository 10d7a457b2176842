// Package engine composes the storage adapter, per-shard HNSW indexes,
// metadata index, multi-tier cache, partitioner and query planner into
// the single entry point external callers use: Add, Update, Delete,
// Restore, Relate, Unrelate, Find. It plays the role pkg/manager.Manager
// played for the teacher — one struct a node constructs once and holds
// for its lifetime — generalized from container/service/volume state to
// noun/verb/vector state, with the operational-mode guard spec.md §4.7
// and §7 requires on every write and every search.
package engine
