package similarity

import (
	"fmt"
	"math"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

// Cosine returns the cosine similarity of two equal-length vectors in
// [-1,1]. Zero-norm vectors yield 0: a zero vector carries no direction,
// so treating it as an error would reject otherwise valid records.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, domain.WrapError(domain.ErrDimensionMismatch, "cosine", fmt.Errorf("empty vector"))
	}
	if len(a) != len(b) {
		return 0, domain.WrapError(domain.ErrDimensionMismatch, "cosine", fmt.Errorf("len %d vs %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// TokenOverlap returns the Jaccard ratio |A∩B| / |A∪B|. Two empty sets
// overlap 0 by convention, so emptiness never reads as similarity.
func TokenOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for token := range small {
		if _, ok := large[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union < 1 {
		union = 1
	}
	return float64(intersection) / float64(union)
}

// TokenDensity is the fraction of tokens in text that occur in keywords.
func TokenDensity(tokens []string, keywords map[string]struct{}) float64 {
	if len(tokens) == 0 || len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, token := range tokens {
		if _, ok := keywords[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}
