package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/similarity"
)

// FuzzyMatch scrolls a bounded window of indexed points and scores their
// payload token sets against the probe by Jaccard overlap. The window keeps
// the scan cheap on large collections at the cost of recall beyond it.
func (c *Client) FuzzyMatch(
	ctx context.Context,
	tokens map[string]struct{},
	topN int,
) ([]domain.Candidate, error) {
	if len(tokens) == 0 || topN <= 0 {
		return nil, nil
	}

	type scored struct {
		id    string
		score float64
	}
	var hits []scored

	var offset any
	remaining := c.fuzzyWindow
	for remaining > 0 {
		limit := remaining
		if limit > 100 {
			limit = 100
		}
		reqBody := map[string]any{
			"limit":        limit,
			"with_payload": []string{"tokens"},
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}
		body, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal scroll body: %w", err)
		}

		var response struct {
			Result struct {
				Points []struct {
					ID      string `json:"id"`
					Payload struct {
						Tokens []string `json:"tokens"`
					} `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
		if err := c.do(ctx, http.MethodPost, url, body, &response); err != nil {
			return nil, err
		}

		for _, point := range response.Result.Points {
			set := make(map[string]struct{}, len(point.Payload.Tokens))
			for _, tok := range point.Payload.Tokens {
				set[tok] = struct{}{}
			}
			if score := similarity.TokenOverlap(tokens, set); score > 0 {
				hits = append(hits, scored{id: point.ID, score: score})
			}
		}

		remaining -= len(response.Result.Points)
		offset = response.Result.NextPageOffset
		if offset == nil || len(response.Result.Points) == 0 {
			break
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > topN {
		hits = hits[:topN]
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Candidate{RecordID: h.id, FuzzyScore: h.score})
	}
	return out, nil
}
