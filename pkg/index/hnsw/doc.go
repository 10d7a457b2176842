/*
Package hnsw implements the Hierarchical Navigable Small World graph that
backs brainy's approximate nearest-neighbor search.

Vectors live in a multi-layer graph: higher layers hold exponentially
fewer nodes and act as express lanes for greedy descent, while layer 0
holds every node and is searched exhaustively within an ef-sized beam.
Insert draws a node's top layer from an exponential distribution with
parameter mL = 1/ln(M), links at most M neighbors per layer (2*M at layer
0) chosen by a heuristic diversity rule, and promotes the entry point
when the new node's layer exceeds the current maximum. Delete disconnects
a node from every layer it participated in and re-runs the same
heuristic over each affected neighbor's remaining candidates, so
repeated churn does not starve the graph of connectivity the way a naive
single-edge removal would.

Distance is pluggable (cosine, euclidean, manhattan, dot) but fixed for
the lifetime of an index, since Save/Load persist the raw vectors
without re-deriving which kernel produced a given layout.

This package holds the full-precision variant only: raw f32 vectors in
every node, loaded eagerly from Load. A product-quantized variant
(subvector codebooks, paged neighbor lists, cache-backed lazy fetch)
shares the same Insert/Delete/Search contract but trades recall for a
far smaller resident set; it is not implemented here — see DESIGN.md.
*/
package hnsw
