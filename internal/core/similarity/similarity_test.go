package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

func TestCosineSelfIsOne(t *testing.T) {
	a := []float32{0.3, -0.5, 0.8, 0.1}

	sim, err := Cosine(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineOppositeIsMinusOne(t *testing.T) {
	a := []float32{0.3, -0.5, 0.8, 0.1}
	neg := make([]float32, len(a))
	for i := range a {
		neg[i] = -a[i]
	}

	sim, err := Cosine(a, neg)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)
}

func TestCosineOrthogonal(t *testing.T) {
	sim, err := Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrDimensionMismatch))

	_, err = Cosine(nil, []float32{1})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrDimensionMismatch))
}

func TestCosineZeroNormIsZeroNotError(t *testing.T) {
	sim, err := Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, sim)
}

func TestTokenOverlap(t *testing.T) {
	set := func(tokens ...string) map[string]struct{} {
		out := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			out[tok] = struct{}{}
		}
		return out
	}

	assert.Equal(t, 1.0, TokenOverlap(set("login", "user"), set("login", "user")))
	assert.Equal(t, 0.0, TokenOverlap(set(), set()))
	assert.Equal(t, 0.0, TokenOverlap(set("a"), set()))
	assert.InDelta(t, 1.0/3.0, TokenOverlap(set("a", "b"), set("b", "c")), 1e-9)
}

func TestTokenDensity(t *testing.T) {
	keywords := map[string]struct{}{"checkout": {}, "cart": {}}

	assert.InDelta(t, 0.5, TokenDensity([]string{"checkout", "page", "cart", "open"}, keywords), 1e-9)
	assert.Zero(t, TokenDensity(nil, keywords))
	assert.Zero(t, TokenDensity([]string{"checkout"}, nil))
}

func TestRescaleAndClamp(t *testing.T) {
	assert.Equal(t, 0.5, Rescale(5, 0, 10))
	assert.Equal(t, 0.0, Rescale(-1, 0, 10))
	assert.Equal(t, 1.0, Rescale(20, 0, 10))
	assert.Equal(t, 0.0, Rescale(5, 10, 10))

	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 1.0, Clamp01(1.2))
}

func TestNormalizeCosine(t *testing.T) {
	assert.Equal(t, 1.0, NormalizeCosine(1))
	assert.Equal(t, 0.0, NormalizeCosine(-1))
	assert.Equal(t, 0.5, NormalizeCosine(0))
}

func TestNormalizePopularity(t *testing.T) {
	assert.Equal(t, 1.0, NormalizePopularity(100, 100))
	assert.Zero(t, NormalizePopularity(0, 100))
	assert.Zero(t, NormalizePopularity(10, 0))

	mid := NormalizePopularity(10, 100)
	assert.Greater(t, mid, 0.0)
	assert.Less(t, mid, 1.0)
	// log scaling compresses the top of the range
	assert.Greater(t, mid, 0.1)
}
