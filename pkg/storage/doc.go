// Package storage defines brainy's pluggable durable storage interface
// (nouns, verbs, metadata, the change log, and cluster configuration) and
// three adapters: BoltStore (local file system, the default for a single
// node), MemoryStore (for tests), and S3Store (object storage behind a
// minimal S3API capability interface).
//
// Every adapter guarantees atomic single-key writes but not cross-key
// transactions; distributed coordination over those writes belongs to
// pkg/consensus, not here. Adapters that cannot serve ReadChangesSince
// from an index report SupportsChangeLogFastPath() == false so callers
// know to fall back to a full scan.
package storage
