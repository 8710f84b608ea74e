package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two embeddings of different lengths
// are compared. All embeddings come from a single fixed-dimension analyzer,
// so hitting this is a programming error, not an input error.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Compare returns a similarity score in [0, 1] for two embeddings, higher
// meaning more similar. The score is 1 - cosine_distance, i.e. plain cosine
// similarity, with negative values clamped to 0 (antipodal embeddings carry
// no meaning for face vectors). Compare is symmetric and returns 1.0 for
// identical vectors.
func Compare(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	// Identical vectors must score exactly 1.0; the rounded square root in
	// cosine can land a hair below it.
	if identical(a, b) {
		return 1.0, nil
	}

	score := cosine(a, b)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

func identical(a, b []float32) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cosine computes plain cosine similarity. Zero vectors compare as 0.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / math.Sqrt(normA*normB)
}
