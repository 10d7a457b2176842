// Package types defines brainy's core data model: Noun and Verb (the
// entity graph), ChangeEvent (the append-only synchronization log),
// ClusterConfig and NodeInfo (cluster membership and shard ownership),
// and the closed enumerations (NounType, VerbType, DistanceFunction,
// InstanceRole, ConsistencyLevel) that other packages switch on.
//
// These types carry no behavior beyond small formatting helpers; the
// packages that own storage, indexing, consensus, and querying all import
// from here rather than defining their own copies, so a Noun read from
// disk, pulled by a read replica, and returned from a search all share one
// representation.
package types
