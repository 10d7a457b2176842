// Package api implements brainy's node-to-node wire protocol from
// spec.md §6: an HTTP control plane (GET /health, GET /peers, POST /rpc),
// a Server-Sent-Events broadcast stream (GET /events), and a streaming
// upload endpoint for shard migration (POST /stream/{streamId}).
//
// Server wraps a plain net/http.Server using the Go 1.22+ ServeMux method
// patterns — the teacher carries a gRPC control plane instead of an HTTP
// one (pkg/api/server.go in the teacher's tree), but spec.md §6 names an
// HTTP/JSON wire contract explicitly, so this package is grounded on the
// shape of the teacher's own pkg/api/health.go (a plain net/http handler
// returning a JSON status document) generalized to the rest of the
// surface spec.md requires. No third-party HTTP router appears anywhere
// in the retrieved example pack for this kind of control-plane surface,
// so the standard library's routing ServeMux is used directly rather
// than adding an ungrounded dependency.
//
// Client is the dial-out half: it implements every Transport interface
// the rest of brainy declares as a narrow capability —
// pkg/consensus.Transport (RequestVote/AppendEntries for the dev-mode
// coordinator), pkg/migration.Transport (shard transfer/validate/switch),
// pkg/replication.Transport (getUpdates pulls), and pkg/cache.Transport
// (distributed invalidation batches) — by POSTing the spec's
// {id, method, params, timestamp, from, to} envelope to a peer's /rpc,
// or by framing a batch to its /stream/{streamId} for the two migration
// calls that carry bulk noun/verb payloads.
package api
