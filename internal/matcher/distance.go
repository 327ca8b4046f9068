package matcher

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kozaktomas/attendance/internal/database"
)

// Metric selects how the distance between two embeddings is measured.
// Both metrics work on L2-normalized vectors, so scores lie in [0, 2].
type Metric string

const (
	// Euclidean is the straight-line distance between unit vectors.
	Euclidean Metric = "euclidean"
	// Cosine is 1 - cosine similarity.
	Cosine Metric = "cosine"
)

// ParseMetric parses a metric name case-insensitively.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case Euclidean, Cosine:
		return m, nil
	case "":
		return Euclidean, nil
	}
	return "", database.Invalid("unknown distance metric %q, must be euclidean or cosine", s)
}

// Distance compares two vectors that were already passed through Normalize.
func (m Metric) Distance(a, b []float64) float64 {
	if m == Cosine {
		return CosineDistance(a, b)
	}
	return EuclideanDistance(a, b)
}

// Normalize scales v to unit length in float64. It fails for zero or
// non-finite vectors, which have no direction to compare.
func Normalize(v []float32) ([]float64, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("%w: embedding has no direction (norm %v)", database.ErrValidation, norm)
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out, nil
}

// EuclideanDistance returns the L2 distance between a and b.
// Returns the maximum unit-sphere distance for mismatched input.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDistance computes 1 - cosine similarity between two unit vectors.
// Returns a value between 0 (identical) and 2 (opposite).
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}
	if slices.Equal(a, b) {
		return 0
	}

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	// Clamp to [-1, 1] to handle floating point errors
	dot = max(-1, min(1, dot))
	return 1 - dot
}
