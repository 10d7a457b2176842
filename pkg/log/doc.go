// Package log provides structured logging for brainy using zerolog.
//
// Init must be called once at process startup before any component logger
// is derived; until then Logger is zerolog's zero value (a no-op logger).
// Component loggers carry a stable field (component, node_id, shard_id,
// noun_id) so log lines can be correlated across the HNSW index, the
// consensus layer, and the query planner without re-deriving context at
// every call site.
package log
