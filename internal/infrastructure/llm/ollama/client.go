package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/ranking"
	"github.com/olegkarev/testcase-search/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Enricher asks the generation model for a one-line summary and keyword
// list of a test case. The model output is strict JSON.
type Enricher struct {
	client *Client
}

func NewEnricher(client *Client) *Enricher {
	return &Enricher{client: client}
}

func (e *Enricher) Enrich(ctx context.Context, tc *domain.TestCase) (domain.Enrichment, error) {
	respText, err := e.client.generateJSON(ctx, buildEnrichmentPrompt(tc))
	if err != nil {
		return domain.Enrichment{}, err
	}

	var result domain.Enrichment
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.Enrichment{}, fmt.Errorf("parse enrichment json: %w", err)
	}
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	return result, nil
}

// Reranker asks the generation model to re-score a short result list
// against the query. It returns per-record score deltas; any failure is
// reported to the caller, which keeps its local order.
type Reranker struct {
	client *Client
}

func NewReranker(client *Client) *Reranker {
	return &Reranker{client: client}
}

func (r *Reranker) Rerank(
	ctx context.Context,
	query string,
	results []domain.ScoredResult,
) ([]ranking.Adjustment, error) {
	if len(results) == 0 {
		return nil, nil
	}

	respText, err := r.client.generateJSON(ctx, buildRerankPrompt(query, results))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Adjustments []struct {
			ID    string  `json:"id"`
			Delta float64 `json:"delta"`
		} `json:"adjustments"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &parsed); err != nil {
		return nil, fmt.Errorf("parse rerank json: %w", err)
	}

	out := make([]ranking.Adjustment, 0, len(parsed.Adjustments))
	for _, adj := range parsed.Adjustments {
		if adj.ID == "" {
			continue
		}
		out = append(out, ranking.Adjustment{RecordID: adj.ID, Delta: adj.Delta})
	}
	return out, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
