package similarity

import "math"

// Clamp01 pins v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Rescale maps v from [lo,hi] into [0,1], clamping outside the range.
// A degenerate range collapses to 0.
func Rescale(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return Clamp01((v - lo) / (hi - lo))
}

// NormalizeCosine maps raw cosine similarity from [-1,1] into [0,1].
func NormalizeCosine(sim float64) float64 {
	return Clamp01((sim + 1) / 2)
}

// NormalizePopularity log-scales a retrieval counter against the current
// candidate set's maximum, so unbounded counter growth never dominates
// fusion. Returns 0 when the set has no popularity signal at all.
func NormalizePopularity(popularity, maxPopularity int64) float64 {
	if popularity <= 0 || maxPopularity <= 0 {
		return 0
	}
	return Clamp01(math.Log1p(float64(popularity)) / math.Log1p(float64(maxPopularity)))
}
