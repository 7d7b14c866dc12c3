package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/fingerprint"
	"github.com/olegkarev/testcase-search/internal/core/ports"
	"github.com/olegkarev/testcase-search/internal/core/ranking"
)

// SearchUseCase embeds the question, gathers filtered vector candidates,
// hydrates their records and hands everything to the fusion engine.
type SearchUseCase struct {
	embedder      ports.Embedder
	vectors       ports.VectorIndex
	records       ports.RecordRepository
	engine        *ranking.Engine
	candidatePool int
	logger        *slog.Logger
}

func NewSearchUseCase(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	records ports.RecordRepository,
	engine *ranking.Engine,
	candidatePool int,
	logger *slog.Logger,
) *SearchUseCase {
	if candidatePool <= 0 {
		candidatePool = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchUseCase{
		embedder:      embedder,
		vectors:       vectors,
		records:       records,
		engine:        engine,
		candidatePool: candidatePool,
		logger:        logger,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req ports.SearchRequest) ([]domain.ScoredResult, error) {
	if req.Question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("question is required"))
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := uc.vectors.NearestFiltered(ctx, queryVector, uc.candidatePool, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return []domain.ScoredResult{}, nil
	}

	ids := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.RecordID)
		scores[hit.RecordID] = hit.VectorScore
	}

	stored, err := uc.records.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate candidates: %w", err)
	}

	candidates := make([]ranking.Candidate, 0, len(stored))
	for _, rec := range stored {
		candidates = append(candidates, ranking.Candidate{
			Record:      rec,
			VectorScore: scores[rec.ID],
		})
	}

	results := uc.engine.Rank(ctx, ranking.Query{
		Text:    req.Question,
		Vector:  queryVector,
		Tokens:  fingerprint.Normalize(req.Question),
		Filter:  req.Filter,
		Variant: req.Variant,
		TopK:    req.TopK,
	}, candidates)

	uc.bumpPopularity(ctx, results)
	return results, nil
}

// bumpPopularity is best-effort bookkeeping; a storage hiccup must never
// fail the search itself.
func (uc *SearchUseCase) bumpPopularity(ctx context.Context, results []domain.ScoredResult) {
	if len(results) == 0 {
		return
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Record.ID)
	}
	if err := uc.records.BumpPopularity(ctx, ids); err != nil {
		uc.logger.Warn("popularity_bump_failed", "count", len(ids), "error", err)
	}
}
