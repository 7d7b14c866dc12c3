package ranking

import (
	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/fingerprint"
	"github.com/olegkarev/testcase-search/internal/core/similarity"
)

func (e *Engine) scoreAll(q Query, candidates []Candidate) []domain.ScoredResult {
	queryTokens := fingerprint.TokenSet(q.Tokens)

	var maxPopularity int64
	for _, c := range candidates {
		if c.Record.Popularity > maxPopularity {
			maxPopularity = c.Record.Popularity
		}
	}

	results := make([]domain.ScoredResult, 0, len(candidates))
	for _, c := range candidates {
		signals := e.computeSignals(q, queryTokens, &c, maxPopularity)

		var score float64
		switch q.Variant {
		case domain.VariantA:
			boost := e.tokenMatchBoost(queryTokens, c.Record.Keywords)
			score = e.cfg.VariantA.Vector*signals.VectorSim +
				e.cfg.VariantA.MaxCosine*signals.MaxCosine +
				boost
		default:
			score = e.cfg.VariantB.Vector*signals.VectorSim +
				e.cfg.VariantB.Semantic*signals.SemanticSim +
				e.cfg.VariantB.Keyword*signals.KeywordMatch +
				e.cfg.VariantB.Feature*signals.FeatureMatch +
				e.cfg.VariantB.Density*signals.TokenDensity +
				e.cfg.VariantB.Popularity*signals.Popularity
		}

		results = append(results, domain.ScoredResult{
			Record:  c.Record,
			Score:   clampScore(score),
			Signals: signals,
		})
	}
	return results
}

func (e *Engine) computeSignals(q Query, queryTokens map[string]struct{}, c *Candidate, maxPopularity int64) domain.SignalBreakdown {
	record := &c.Record

	signals := domain.SignalBreakdown{
		VectorSim:    similarity.Clamp01(c.VectorScore),
		MaxCosine:    maxStepCosine(q.Vector, record, c.VectorScore),
		SemanticSim:  summaryCosine(q.Vector, record),
		KeywordMatch: similarity.TokenOverlap(queryTokens, keywordSet(record.Keywords)),
		FeatureMatch: featureMatch(queryTokens, record.Feature),
		Popularity:   similarity.NormalizePopularity(record.Popularity, maxPopularity),
	}
	signals.TokenDensity = similarity.TokenDensity(q.Tokens, fingerprint.New(record).Set)
	return signals
}

// tokenMatchBoost grants a small additive bonus per distinct query token
// found in the record's keywords, capped so it can only break ties among
// weak matches, never suppress strong vector matches.
func (e *Engine) tokenMatchBoost(queryTokens map[string]struct{}, keywords []string) float64 {
	kw := keywordSet(keywords)
	boost := 0.0
	for token := range queryTokens {
		if _, ok := kw[token]; ok {
			boost += e.cfg.TokenBoostPerHit
			if boost >= e.cfg.TokenBoostCap {
				return e.cfg.TokenBoostCap
			}
		}
	}
	return boost
}

// maxStepCosine is the best single-step match of the query, a sharper
// relevance signal than whole-record similarity. Records without step
// vectors fall back to the retrieval score.
func maxStepCosine(queryVector []float32, record *domain.TestCase, retrievalScore float64) float64 {
	if len(queryVector) == 0 || len(record.StepVectors) == 0 {
		return similarity.Clamp01(retrievalScore)
	}
	best := 0.0
	for _, sv := range record.StepVectors {
		sim, err := similarity.Cosine(queryVector, sv)
		if err != nil {
			continue
		}
		if c := similarity.Clamp01(sim); c > best {
			best = c
		}
	}
	return best
}

func summaryCosine(queryVector []float32, record *domain.TestCase) float64 {
	if len(queryVector) == 0 || len(record.SummaryVector) == 0 {
		return 0
	}
	sim, err := similarity.Cosine(queryVector, record.SummaryVector)
	if err != nil {
		return 0
	}
	return similarity.Clamp01(sim)
}

// featureMatch is the fraction of the feature name's tokens present in
// the query: 1 for a full match, partial credit for a partial one.
func featureMatch(queryTokens map[string]struct{}, feature string) float64 {
	tokens := fingerprint.Normalize(feature)
	if len(tokens) == 0 || len(queryTokens) == 0 {
		return 0
	}
	hits := 0
	for _, token := range tokens {
		if _, ok := queryTokens[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func keywordSet(keywords []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		for _, token := range fingerprint.Normalize(kw) {
			out[token] = struct{}{}
		}
	}
	return out
}
