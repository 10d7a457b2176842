package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brainydb/brainy/internal/brainyerr"
)

// DefaultTimeout bounds a fusion query's parallel fan-out when the
// Request doesn't set one.
const DefaultTimeout = 5 * time.Second

// Planner composes the vector, metadata, and graph strategies behind one
// Plan entry point, resolving auto mode and merging fusion results by the
// weighted scoring formula from spec.md §4.7.
type Planner struct {
	Vector   *VectorStrategy
	Metadata *MetadataStrategy
	Graph    *GraphStrategy

	DirectLookup func(id string) (Match, bool, error)
}

// Plan resolves mode, enforces the operational guard, runs the
// appropriate strategy (or strategies, for fusion), and returns one
// cursor-paginated page of results.
func (p *Planner) Plan(ctx context.Context, req Request, guard Guard) (*Result, error) {
	if req.ID != "" {
		if guard.WriteOnly && !req.AllowDirectReads {
			return nil, brainyerr.New(brainyerr.ModeViolation, "query: node is write-only; direct reads need AllowDirectReads")
		}
		return p.directLookup(req)
	}
	if err := p.checkGuard(req, guard); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" || mode == ModeAuto {
		mode = resolveAutoMode(req)
	}

	fp := fingerprint(req)
	var cursor cursorPayload
	if req.Cursor != "" {
		c, err := decodeCursor(req.Cursor, fp)
		if err != nil {
			return nil, brainyerr.Wrap(brainyerr.InvalidArgument, "query: invalid cursor", err)
		}
		cursor = c
	} else {
		cursor = cursorPayload{LastScore: posInf, LastID: ""}
	}

	var matches []Match
	var err error
	switch mode {
	case ModeVector:
		matches, err = p.Vector.Run(ctx, req)
		setScore(matches, func(m Match) float64 { return m.VectorScore })
	case ModeMetadata:
		matches, err = p.Metadata.Run(ctx, req)
		setScore(matches, func(m Match) float64 { return m.MetadataScore })
	case ModeGraph:
		matches, err = p.Graph.Run(ctx, req)
		setScore(matches, func(m Match) float64 { return m.GraphScore })
	case ModeFusion:
		matches, err = p.runFusion(ctx, req)
	default:
		return nil, brainyerr.Newf(brainyerr.InvalidArgument, "query: unknown mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	filtered := matches[:0:0]
	for _, m := range matches {
		if isAfterCursor(m.Score, m.ID, cursor) {
			filtered = append(filtered, m)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	start := req.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	page := filtered[start:]
	if len(page) > limit {
		page = page[:limit]
	}

	result := &Result{Matches: page}
	if len(page) == limit && start+limit < len(filtered) {
		last := page[len(page)-1]
		next, err := encodeCursor(last.Score, last.ID, fp)
		if err != nil {
			return nil, err
		}
		result.NextCursor = next
	}
	return result, nil
}

const posInf = math.MaxFloat64

func setScore(matches []Match, score func(Match) float64) {
	for i := range matches {
		matches[i].Score = score(matches[i])
	}
}

func (p *Planner) directLookup(req Request) (*Result, error) {
	if p.DirectLookup == nil {
		return nil, brainyerr.New(brainyerr.InvalidArgument, "query: direct-id lookup not supported")
	}
	m, ok, err := p.DirectLookup(req.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{}, nil
	}
	m.Score = 1
	return &Result{Matches: []Match{m}}, nil
}

// checkGuard implements spec.md §4.7's write-only/read-only/frozen rules
// for search traffic: a write-only node refuses search entirely unless
// the caller both opted into AllowDirectReads and is doing a direct-id
// lookup (handled earlier in Plan, before this is ever reached for that
// case).
func (p *Planner) checkGuard(req Request, guard Guard) error {
	if guard.WriteOnly {
		return brainyerr.New(brainyerr.ModeViolation, "query: node is write-only; reads are refused")
	}
	return nil
}

// resolveAutoMode implements spec.md §4.7's auto-mode heuristics.
func resolveAutoMode(req Request) Mode {
	hasConnected := req.Connected != nil && (req.Connected.From != "" || req.Connected.To != "")
	hasLike := req.Like != nil
	hasWhere := req.Where != nil

	switch {
	case hasConnected && hasLike:
		return ModeFusion
	case hasConnected:
		return ModeGraph
	case hasWhere && hasLike:
		return ModeFusion
	case hasWhere:
		return ModeMetadata
	case hasLike:
		return ModeVector
	default:
		return ModeMetadata
	}
}

// runFusion fans the three strategies out in parallel within the
// Request's Timeout (or DefaultTimeout), merging per-id component scores
// into the weighted sum from spec.md §4.7.
func (p *Planner) runFusion(ctx context.Context, req Request) ([]Match, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var vectorMatches, metadataMatches, graphMatches []Match
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorMatches, err = p.Vector.Run(gctx, req)
		return err
	})
	g.Go(func() error {
		var err error
		metadataMatches, err = p.Metadata.Run(gctx, req)
		return err
	})
	g.Go(func() error {
		var err error
		graphMatches, err = p.Graph.Run(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("query: fusion fan-out: %w", err)
	}

	weights := Weights{}
	if req.Weights != nil {
		weights = *req.Weights
	}
	weights = weights.orDefault()

	merged := make(map[string]*Match)
	merge := func(matches []Match) {
		for _, m := range matches {
			existing, ok := merged[m.ID]
			if !ok {
				cp := m
				merged[m.ID] = &cp
				continue
			}
			if m.VectorScore > existing.VectorScore {
				existing.VectorScore = m.VectorScore
			}
			if m.MetadataScore > existing.MetadataScore {
				existing.MetadataScore = m.MetadataScore
			}
			if m.GraphScore > existing.GraphScore {
				existing.GraphScore = m.GraphScore
				existing.GraphDepth = m.GraphDepth
			}
		}
	}
	merge(vectorMatches)
	merge(metadataMatches)
	merge(graphMatches)

	out := make([]Match, 0, len(merged))
	for _, m := range merged {
		m.Score = weights.Vector*m.VectorScore + weights.Metadata*m.MetadataScore + weights.Graph*m.GraphScore
		out = append(out, *m)
	}
	return out, nil
}
