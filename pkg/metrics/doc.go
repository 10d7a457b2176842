// Package metrics defines and registers brainy's Prometheus metrics and
// exposes them for scraping alongside liveness/readiness endpoints.
//
// Metrics are grouped by the component that owns them: cluster membership
// (NodesTotal, ShardsTotal), the entity graph (NounsTotal, VerbsTotal,
// TombstonesTotal), Raft consensus, the HTTP control plane, the HNSW index
// and query planner, the multi-tier cache, shard migration, and background
// cleanup. All metrics are registered at package init via
// prometheus.MustRegister, so importing this package is enough to make them
// scrapeable; callers only need to call Handler() from their HTTP mux.
package metrics
