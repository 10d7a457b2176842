package hnsw

import (
	"math"

	"github.com/brainydb/brainy/pkg/types"
)

// DistanceFunc computes a distance between two equal-length vectors.
// Smaller is closer. Implementations must be deterministic for identical
// inputs.
type DistanceFunc func(a, b []float32) float32

// kernelFor resolves a types.DistanceFunction to its implementation.
func kernelFor(d types.DistanceFunction) DistanceFunc {
	switch d {
	case types.DistanceEuclidean:
		return EuclideanDistance
	case types.DistanceManhattan:
		return ManhattanDistance
	case types.DistanceDot:
		return DotDistance
	case types.DistanceCosine:
		fallthrough
	default:
		return CosineDistance
	}
}

// CosineDistance returns 1 - <u,v> for pre-normalized unit vectors. The
// engine normalizes on insert and on query, so this is a plain inner
// product rather than a full cosine computation.
func CosineDistance(u, v []float32) float32 {
	var dot float32
	for i := range u {
		dot += u[i] * v[i]
	}
	return 1 - dot
}

// EuclideanDistance returns the L2 distance between u and v.
func EuclideanDistance(u, v []float32) float32 {
	var sum float32
	for i := range u {
		d := u[i] - v[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// ManhattanDistance returns the L1 distance between u and v.
func ManhattanDistance(u, v []float32) float32 {
	var sum float32
	for i := range u {
		d := u[i] - v[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// DotDistance returns the negated dot product, so that a higher raw
// similarity (larger dot product) sorts as a smaller distance.
func DotDistance(u, v []float32) float32 {
	var dot float32
	for i := range u {
		dot += u[i] * v[i]
	}
	return -dot
}

// Normalize scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// IsUnitNorm reports whether ‖v‖ = 1 within the given epsilon.
func IsUnitNorm(v []float32, eps float64) bool {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	return math.Abs(norm-1) <= eps
}

func hasNaNOrInf(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return true
		}
	}
	return false
}
