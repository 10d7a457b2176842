// Package replication implements brainy's optional read/write separation
// layer (spec.md §4.9): a primary-owned operation log that replicas pull
// from and apply idempotently, plus the read-preference/consistency-level
// routing a caller uses to pick where a read is served.
package replication
