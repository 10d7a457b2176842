// Package embed defines the embedding collaborator's contract (spec.md
// §6): brainy's core never trains or hosts a model, it only consumes one
// through this narrow capability trait, composed by construction per the
// "no process-wide singletons" re-architecture note in spec.md §9.
package embed

import (
	"context"
	"math"
	"sync"

	"github.com/brainydb/brainy/internal/brainyerr"
)

// Embedder turns text into unit-norm vectors of a fixed dimension.
// Implementations must be deterministic for identical input and may
// suspend (network or model-runtime call); callers classify failures as
// transient and apply their own retry policy.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the fixed output vector length.
	Dimension() int
}

// StaticEmbedder is a deterministic test double: it hashes each input
// string into a fixed-dimension unit vector. It is the only Embedder
// shipped in this repository — a real text-embedding model is explicitly
// out of scope per spec.md §1.
type StaticEmbedder struct {
	mu        sync.Mutex
	dimension int
	cache     map[string][]float32
}

// NewStaticEmbedder creates a StaticEmbedder producing vectors of the
// given dimension.
func NewStaticEmbedder(dimension int) *StaticEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &StaticEmbedder{dimension: dimension, cache: make(map[string][]float32)}
}

func (e *StaticEmbedder) Dimension() int { return e.dimension }

// Embed deterministically derives a unit vector per text from an FNV hash
// seeded PRNG, so identical input always produces an identical vector
// without needing a real model.
func (e *StaticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, brainyerr.Wrap(brainyerr.Timeout, "embed: context cancelled", err)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *StaticEmbedder) embedOne(text string) []float32 {
	e.mu.Lock()
	if v, ok := e.cache[text]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	seed := fnv64(text)
	vec := make([]float32, e.dimension)
	state := seed
	var sumSq float64
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		// Map the top bits of the LCG state into [-1, 1].
		v := float32((state>>40)%2000001)/1000000.0 - 1.0
		vec[i] = v
		sumSq += float64(v) * float64(v)
	}
	norm := float32(1.0)
	if sumSq > 0 {
		norm = float32(1.0 / math.Sqrt(sumSq))
	}
	for i := range vec {
		vec[i] *= norm
	}

	e.mu.Lock()
	e.cache[text] = vec
	e.mu.Unlock()
	return vec
}

func fnv64(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
