// Package migration implements brainy's four-phase shard migration
// protocol (spec.md §4.6): propose, transfer, validate, switch. The
// batch-streaming bookkeeping (a map+mutex of in-flight tasks, stopCh
// cancellation) follows the shape of the teacher's
// pkg/worker/worker.go container-transfer tracking, generalized from
// containers to noun/verb batches; retry/backoff mirrors the
// retryPolicy fields named in spec.md §5.
package migration
