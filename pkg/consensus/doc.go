// Package consensus implements brainy's cluster membership and leader
// election (spec.md §4.5). Two coordinator implementations are provided
// behind the Coordinator interface:
//
//   - Raft (raft.go): production path, wrapping hashicorp/raft exactly as
//     the teacher's pkg/manager did — TCP transport, BoltDB log/stable
//     stores, file snapshot store — driving a ClusterFSM that applies
//     cluster-config and shard-assignment mutations.
//   - Simple (simple.go): a from-scratch implementation of the spec's
//     literal RequestVote/AppendEntries/heartbeat message algebra (split
//     votes are retried after a randomized timeout; candidate ids are not
//     compared), gated behind --dev-coordinator since it is
//     suitable only for local/dev clusters (spec.md §9 Open Question).
//
// Storage-based discovery/bootstrap (discovery.go) and the DNS
// (discovery_dns.go) / Kubernetes Endpoints (discovery_k8s.go) peer
// discovery strategies sit alongside, not inside, either coordinator —
// they populate the candidate peer list consensus elections run over.
package consensus
