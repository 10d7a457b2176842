package query

import (
	"time"

	"github.com/brainydb/brainy/pkg/metadata"
	"github.com/brainydb/brainy/pkg/types"
)

// Mode selects which strategy (or combination) answers a Request.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeVector   Mode = "vector"
	ModeGraph    Mode = "graph"
	ModeMetadata Mode = "metadata"
	ModeFusion   Mode = "fusion"
)

// Connected describes a graph traversal: start from From (or walk
// backwards from To), optionally restricted to one verb type, up to
// Depth hops.
type Connected struct {
	From  string
	To    string
	Via   types.VerbType
	Depth int
}

// Weights are the fusion scoring coefficients from spec.md §4.7; the
// zero value is not valid on its own — callers get DefaultWeights
// unless they override all three.
type Weights struct {
	Vector   float64
	Metadata float64
	Graph    float64
}

// DefaultWeights are (w_v, w_m, w_g) = (0.6, 0.25, 0.15).
var DefaultWeights = Weights{Vector: 0.6, Metadata: 0.25, Graph: 0.15}

// Request is the planner's single entry point, accepting either a
// free-text/vector similarity query, a metadata predicate, a graph
// traversal, or any combination resolved through fusion.
type Request struct {
	// ID, when set, is a direct-id lookup: bypasses every strategy,
	// returning the single noun if present. On a write-only node it is
	// refused unless AllowDirectReads is also set.
	ID string

	// Like is either a string (embedded via the configured Embedder) or
	// a types.Vector passed straight to the index.
	Like any

	Where     *metadata.Predicate
	Connected *Connected

	Mode Mode

	Limit  int
	Offset int
	Cursor string

	MaxDepth int
	Parallel bool
	Timeout  time.Duration

	// IncludeDeleted opts tombstoned entities back into results. The zero
	// value excludes them, which is the default every search gets.
	IncludeDeleted bool
	Weights        *Weights

	// AllowDirectReads permits this request to bypass the write-only
	// mode guard when it is also a direct-id lookup.
	AllowDirectReads bool
}

// Guard is the operational-mode state a Planner checks before running a
// Request; it mirrors the node-wide read-only/write-only/frozen flags
// from spec.md §6.
type Guard struct {
	ReadOnly  bool
	WriteOnly bool
	Frozen    bool
}

// Match is one ranked result. Per-mode component scores are carried
// through so callers (and tests) can see how the fused score was built.
type Match struct {
	ID            string
	Score         float64
	VectorScore   float64
	MetadataScore float64
	GraphScore    float64
	GraphDepth    int
}

// Result is a page of Matches plus an opaque cursor for the next page,
// empty when there are no more results.
type Result struct {
	Matches    []Match
	NextCursor string
}

func (w Weights) orDefault() Weights {
	if w == (Weights{}) {
		return DefaultWeights
	}
	return w
}
