// Package query implements brainy's triple-fusion query planner
// (spec.md §4.7): one Planner composed of independent vector, metadata,
// and graph strategy objects, fanned out in parallel for fusion mode and
// merged by a weighted score. The strategy-object-under-one-composer
// shape follows the teacher's own preference for small collaborators
// wired into a coordinating struct (pkg/manager.Manager composing fsm,
// tokenManager, eventBroker, ...), generalized here from cluster
// management to query execution.
package query
