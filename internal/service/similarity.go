package service

import (
	"math"

	"github.com/timmy/vismatch/internal/domain"
)

// CosineSimilarity computes dot(a,b)/(|a||b|) in float64.
// Parameters:
//   - a, b: embeddings of equal length.
// Returns:
//   - float64: similarity in [-1, 1], 0 when either vector has zero norm.
//   - error: *domain.DimensionMismatchError when the lengths differ.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &domain.DimensionMismatchError{Left: len(a), Right: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors just past 1
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// ToPercentage maps a similarity to a 0..100 score. Negative similarity maps to 0.
func ToPercentage(sim float64) float64 {
	p := sim * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// RoundScore rounds half away from zero to two decimals.
func RoundScore(p float64) float64 {
	return math.Round(p*100) / 100
}

// NormalizeVector returns a unit-length copy of v. A zero vector is returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
