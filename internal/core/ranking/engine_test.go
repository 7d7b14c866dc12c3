package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

func candidate(id, feature string, vectorScore float64) Candidate {
	return Candidate{
		Record: domain.TestCase{
			ID:         id,
			TestCaseID: "TC-" + id,
			Feature:    feature,
		},
		VectorScore: vectorScore,
	}
}

func TestRankPreFilterIsConjunctive(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	candidates := []Candidate{
		{Record: domain.TestCase{ID: "a", Feature: "Checkout", Platform: "web", Priority: domain.PriorityHigh}, VectorScore: 0.9},
		{Record: domain.TestCase{ID: "b", Feature: "Checkout", Platform: "ios", Priority: domain.PriorityHigh}, VectorScore: 0.8},
		{Record: domain.TestCase{ID: "c", Feature: "Login", Platform: "web", Priority: domain.PriorityHigh}, VectorScore: 0.7},
	}

	results := engine.Rank(context.Background(), Query{
		Filter:  domain.SearchFilter{Feature: "checkout", Platform: "WEB"},
		Variant: domain.VariantB,
	}, candidates)

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Record.ID)
}

func TestRankTagFilterRequiresAllTags(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	candidates := []Candidate{
		{Record: domain.TestCase{ID: "a", Tags: []string{"smoke", "regression"}}, VectorScore: 0.9},
		{Record: domain.TestCase{ID: "b", Tags: []string{"smoke"}}, VectorScore: 0.8},
	}

	results := engine.Rank(context.Background(), Query{
		Filter:  domain.SearchFilter{Tags: []string{"smoke", "regression"}},
		Variant: domain.VariantB,
	}, candidates)

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Record.ID)
}

func TestRankVariantAScoreAndBoostCap(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	rec := domain.TestCase{
		ID:       "a",
		Feature:  "Checkout",
		Keywords: []string{"cart", "payment", "discount", "coupon"},
	}

	results := engine.Rank(context.Background(), Query{
		Tokens:  []string{"cart", "payment", "discount", "coupon"},
		Variant: domain.VariantA,
	}, []Candidate{{Record: rec, VectorScore: 1.0}})

	require.Len(t, results, 1)
	// 0.60*1.0 + 0.25*1.0 (step fallback) + capped boost 0.15
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.LessOrEqual(t, results[0].Score, scoreCeiling)
}

func TestRankVariantBVectorOnly(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB},
		[]Candidate{candidate("a", "Checkout", 0.8)})

	require.Len(t, results, 1)
	assert.InDelta(t, 0.45*0.8, results[0].Score, 1e-9)
}

func TestRankOrderingAndTieBreaks(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	popular := candidate("z", "Checkout", 0.8)
	popular.Record.Popularity = 50
	unpopular := candidate("a", "Login", 0.8)

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB},
		[]Candidate{unpopular, popular})

	require.Len(t, results, 2)
	// popularity breaks the raw-score tie... but popularity also feeds the
	// variant B formula, so the popular record wins outright here
	assert.Equal(t, "z", results[0].Record.ID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
}

func TestRankIdenticalInputsIdenticalOutput(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	candidates := []Candidate{
		candidate("a", "Checkout", 0.9),
		candidate("b", "Login", 0.9),
		candidate("c", "Search", 0.4),
	}
	q := Query{Variant: domain.VariantB, Tokens: []string{"order"}}

	first := engine.Rank(context.Background(), q, candidates)
	second := engine.Rank(context.Background(), q, candidates)

	assert.Equal(t, first, second)
}

func TestRankDiversityDefersOverRepresentedFeature(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerFeature = 1
	engine := NewEngine(cfg, nil, nil)

	candidates := []Candidate{
		candidate("c1", "Checkout", 0.9),
		candidate("c2", "Checkout", 0.85),
		candidate("c3", "Checkout", 0.4),
		candidate("alt", "Search", 0.84),
	}

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB}, candidates)

	require.Len(t, results, 4)
	assert.Equal(t, "c1", results[0].Record.ID)
	// c2 deferred past the in-tolerance Search alternative
	assert.Equal(t, "alt", results[1].Record.ID)
	assert.Equal(t, "c3", results[2].Record.ID)
	assert.Equal(t, "c2", results[3].Record.ID)
}

func TestRankDiversityKeepsOrderWithoutAlternatives(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerFeature = 1
	engine := NewEngine(cfg, nil, nil)

	candidates := []Candidate{
		candidate("c1", "Checkout", 0.9),
		candidate("c2", "Checkout", 0.85),
		candidate("c3", "Checkout", 0.4),
	}

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB}, candidates)

	require.Len(t, results, 3)
	assert.Equal(t, "c1", results[0].Record.ID)
	assert.Equal(t, "c2", results[1].Record.ID)
	assert.Equal(t, "c3", results[2].Record.ID)
}

func TestRankDiversityNeverShrinksResultSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerFeature = 1
	cfg.TopK = 10
	engine := NewEngine(cfg, nil, nil)

	candidates := make([]Candidate, 0, 6)
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		feature := "Checkout"
		if i%2 == 1 {
			feature = "Login"
		}
		candidates = append(candidates, candidate(id, feature, 0.9-float64(i)*0.01))
	}

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB}, candidates)
	assert.Len(t, results, len(candidates))
}

func TestRankTruncatesToTopKWithoutPadding(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	candidates := []Candidate{
		candidate("a", "Checkout", 0.9),
		candidate("b", "Login", 0.8),
	}

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB, TopK: 1}, candidates)
	require.Len(t, results, 1)

	results = engine.Rank(context.Background(), Query{Variant: domain.VariantB, TopK: 5}, candidates)
	assert.Len(t, results, 2)
}

type fakeReranker struct {
	adjustments []Adjustment
	err         error
	calls       int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, _ []domain.ScoredResult) ([]Adjustment, error) {
	f.calls++
	return f.adjustments, f.err
}

func TestRankRerankerAdjustmentsReorder(t *testing.T) {
	reranker := &fakeReranker{adjustments: []Adjustment{{RecordID: "b", Delta: 0.3}}}
	engine := NewEngine(DefaultConfig(), reranker, nil)

	candidates := []Candidate{
		candidate("a", "Checkout", 0.9),
		candidate("b", "Login", 0.7),
	}

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB}, candidates)

	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Record.ID)
	assert.Equal(t, 1, reranker.calls)
}

func TestRankRerankerFailureKeepsLocalOrder(t *testing.T) {
	reranker := &fakeReranker{err: errors.New("rerank backend down")}
	engine := NewEngine(DefaultConfig(), reranker, nil)

	candidates := []Candidate{
		candidate("a", "Checkout", 0.9),
		candidate("b", "Login", 0.7),
	}

	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB}, candidates)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Record.ID)
}

func TestRankEmptyCandidatesIsEmptyNotError(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	results := engine.Rank(context.Background(), Query{Variant: domain.VariantB}, nil)
	assert.Empty(t, results)
}
