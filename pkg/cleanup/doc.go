// Package cleanup implements brainy's periodic soft-delete garbage
// collector (spec.md §4.8): a ticker-driven reconciliation loop, in the
// shape of the teacher's pkg/reconciler/reconciler.go, that physically
// removes tombstoned nouns and verbs once they have aged past
// maxSoftDeleteAge, prunes verbs left dangling by a gone endpoint, and
// only runs on the node holding the cluster leadership lease.
package cleanup
