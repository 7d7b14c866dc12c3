package ranking

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

// scoreCeiling bounds composite scores. Variant A's additive token boost
// may push past 1.0 by up to its cap, so the ceiling sits above 1.
const scoreCeiling = 1.15

// Candidate is a vector-search hit hydrated with its stored record.
type Candidate struct {
	Record      domain.TestCase
	VectorScore float64
}

// Adjustment is a reranker's score delta for one result.
type Adjustment struct {
	RecordID string
	Delta    float64
}

// Reranker is the optional external reordering collaborator. Failures
// and timeouts are non-fatal; the engine keeps its own fused order.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []domain.ScoredResult) ([]Adjustment, error)
}

// Config carries the fusion calibration. Weights are explicit so tuning
// lives in configuration, not code.
type Config struct {
	TopK               int           `yaml:"top_k"`
	MaxPerFeature      int           `yaml:"max_per_feature"`
	DiversityTolerance float64       `yaml:"diversity_tolerance"`
	TokenBoostPerHit   float64       `yaml:"token_boost_per_hit"`
	TokenBoostCap      float64       `yaml:"token_boost_cap"`
	RerankPoolFactor   int           `yaml:"rerank_pool_factor"`
	RerankTimeoutMS    int           `yaml:"rerank_timeout_ms"`
	RerankTimeout      time.Duration `yaml:"-"`

	VariantA VariantAWeights `yaml:"variant_a"`
	VariantB VariantBWeights `yaml:"variant_b"`
}

type VariantAWeights struct {
	Vector    float64 `yaml:"vector"`
	MaxCosine float64 `yaml:"max_cosine"`
}

type VariantBWeights struct {
	Vector     float64 `yaml:"vector"`
	Semantic   float64 `yaml:"semantic"`
	Keyword    float64 `yaml:"keyword"`
	Feature    float64 `yaml:"feature"`
	Density    float64 `yaml:"density"`
	Popularity float64 `yaml:"popularity"`
}

func DefaultConfig() Config {
	return Config{
		TopK:               10,
		MaxPerFeature:      3,
		DiversityTolerance: 0.05,
		TokenBoostPerHit:   0.05,
		TokenBoostCap:      0.15,
		RerankPoolFactor:   2,
		RerankTimeout:      3 * time.Second,
		VariantA:           VariantAWeights{Vector: 0.60, MaxCosine: 0.25},
		// sums to 0.95, leaving headroom for rerank adjustments
		VariantB: VariantBWeights{
			Vector:     0.45,
			Semantic:   0.20,
			Keyword:    0.12,
			Feature:    0.08,
			Density:    0.05,
			Popularity: 0.05,
		},
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.TopK <= 0 {
		out.TopK = def.TopK
	}
	if out.MaxPerFeature <= 0 {
		out.MaxPerFeature = def.MaxPerFeature
	}
	if out.DiversityTolerance <= 0 {
		out.DiversityTolerance = def.DiversityTolerance
	}
	if out.TokenBoostPerHit <= 0 {
		out.TokenBoostPerHit = def.TokenBoostPerHit
	}
	if out.TokenBoostCap <= 0 {
		out.TokenBoostCap = def.TokenBoostCap
	}
	if out.RerankPoolFactor <= 0 {
		out.RerankPoolFactor = def.RerankPoolFactor
	}
	if out.RerankTimeout <= 0 && out.RerankTimeoutMS > 0 {
		out.RerankTimeout = time.Duration(out.RerankTimeoutMS) * time.Millisecond
	}
	if out.RerankTimeout <= 0 {
		out.RerankTimeout = def.RerankTimeout
	}
	if out.VariantA == (VariantAWeights{}) {
		out.VariantA = def.VariantA
	}
	if out.VariantB == (VariantBWeights{}) {
		out.VariantB = def.VariantB
	}
	return out
}

// Query is one ranked-search request.
type Query struct {
	Text    string
	Vector  []float32
	Tokens  []string
	Filter  domain.SearchFilter
	Variant domain.RankVariant
	TopK    int
}

// Engine fuses heterogeneous relevance signals into one deterministic
// ordering. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	cfg        Config
	reranker   Reranker
	logger     *slog.Logger
	onFallback func()
}

func NewEngine(cfg Config, reranker Reranker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg.normalize(),
		reranker: reranker,
		logger:   logger,
	}
}

// OnRerankFallback registers a hook invoked whenever a rerank attempt
// fails and the fused local order is kept. Call before first use; the
// engine itself is otherwise immutable.
func (e *Engine) OnRerankFallback(hook func()) {
	e.onFallback = hook
}

// Rank pre-filters, scores, orders, diversifies and truncates the
// candidate set. Identical inputs always produce identical output.
func (e *Engine) Rank(ctx context.Context, q Query, candidates []Candidate) []domain.ScoredResult {
	topK := q.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	survivors := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if matchesFilter(&c.Record, q.Filter) {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 {
		return []domain.ScoredResult{}
	}

	results := e.scoreAll(q, survivors)
	sortResults(results)

	results = e.applyRerank(ctx, q, results, topK)
	results = e.diversify(results)

	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// sortResults orders by score descending, then popularity descending,
// then record ID ascending so ties break deterministically.
func sortResults(results []domain.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Record.Popularity != results[j].Record.Popularity {
			return results[i].Record.Popularity > results[j].Record.Popularity
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}

// applyRerank hands the fused top-N to the optional reranker and folds
// its adjustments back in. Any failure keeps the local order.
func (e *Engine) applyRerank(ctx context.Context, q Query, results []domain.ScoredResult, topK int) []domain.ScoredResult {
	if e.reranker == nil || len(results) == 0 {
		return results
	}

	poolSize := topK * e.cfg.RerankPoolFactor
	if poolSize > len(results) {
		poolSize = len(results)
	}
	pool := results[:poolSize]

	rerankCtx, cancel := context.WithTimeout(ctx, e.cfg.RerankTimeout)
	defer cancel()

	adjustments, err := e.reranker.Rerank(rerankCtx, q.Text, pool)
	if err != nil {
		e.logger.Warn("rerank_fallback", "error", err, "pool", poolSize)
		if e.onFallback != nil {
			e.onFallback()
		}
		return results
	}

	deltas := make(map[string]float64, len(adjustments))
	for _, adj := range adjustments {
		deltas[adj.RecordID] = adj.Delta
	}
	for i := range pool {
		if delta, ok := deltas[pool[i].Record.ID]; ok {
			pool[i].Score = clampScore(pool[i].Score + delta)
		}
	}
	sortResults(pool)
	return results
}

// diversify walks the ordered list limiting each feature to MaxPerFeature
// slots as long as an alternative with a different feature stays within
// the score tolerance. Deferred candidates move to the end of the pool
// instead of being dropped, so the result length never shrinks.
func (e *Engine) diversify(results []domain.ScoredResult) []domain.ScoredResult {
	if len(results) <= 1 {
		return results
	}

	selected := make([]domain.ScoredResult, 0, len(results))
	deferred := make([]domain.ScoredResult, 0)
	featureCount := make(map[string]int, 8)

	for i, current := range results {
		feature := current.Record.Feature
		if feature == "" || featureCount[feature] < e.cfg.MaxPerFeature {
			selected = append(selected, current)
			featureCount[feature]++
			continue
		}

		if e.hasDiverseAlternative(results[i+1:], feature, current.Score) {
			deferred = append(deferred, current)
			continue
		}
		selected = append(selected, current)
		featureCount[feature]++
	}

	return append(selected, deferred...)
}

func (e *Engine) hasDiverseAlternative(rest []domain.ScoredResult, feature string, score float64) bool {
	for _, alt := range rest {
		if alt.Score < score-e.cfg.DiversityTolerance {
			return false
		}
		if alt.Record.Feature != feature {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > scoreCeiling {
		return scoreCeiling
	}
	return v
}

func matchesFilter(tc *domain.TestCase, f domain.SearchFilter) bool {
	if f.IsZero() {
		return true
	}
	if f.Feature != "" && !strings.EqualFold(tc.Feature, f.Feature) {
		return false
	}
	if f.Priority != "" && tc.Priority != f.Priority {
		return false
	}
	if f.Platform != "" && !strings.EqualFold(tc.Platform, f.Platform) {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, tag := range tc.Tags {
			if strings.EqualFold(tag, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
