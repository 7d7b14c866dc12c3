package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/fingerprint"
)

type Client struct {
	baseURL     string
	collection  string
	httpClient  *http.Client
	fuzzyWindow int

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, fuzzyWindow int) *Client {
	if fuzzyWindow <= 0 {
		fuzzyWindow = 500
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		collection:  collection,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		fuzzyWindow: fuzzyWindow,
	}
}

// IndexRecord upserts one point keyed by the record ID. The fingerprint
// token set rides in the payload so fuzzy matching can scan it without a
// second store.
func (c *Client) IndexRecord(ctx context.Context, tc *domain.TestCase) error {
	if !tc.HasVector() {
		return fmt.Errorf("record %s has no main vector", tc.ID)
	}
	if err := c.ensureCollection(ctx, len(tc.MainVector)); err != nil {
		return err
	}

	fp := fingerprint.New(tc)
	point := map[string]any{
		"id":     tc.ID,
		"vector": tc.MainVector,
		"payload": map[string]any{
			"test_case_id": tc.TestCaseID,
			"feature":      tc.Feature,
			"tags":         tc.Tags,
			"priority":     string(tc.Priority),
			"platform":     tc.Platform,
			"tokens":       fp.Tokens,
			"digest":       fp.DigestHex(),
		},
	}

	body, err := json.Marshal(map[string]any{"points": []any{point}})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, body, nil)
}

func (c *Client) Nearest(ctx context.Context, vector []float32, topN int) ([]domain.Candidate, error) {
	return c.NearestFiltered(ctx, vector, topN, domain.SearchFilter{})
}

func (c *Client) NearestFiltered(
	ctx context.Context,
	vector []float32,
	topN int,
	filter domain.SearchFilter,
) ([]domain.Candidate, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topN,
		"with_payload": false,
	}
	if must := filterConditions(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var response struct {
		Result []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, body, &response); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(response.Result))
	for _, hit := range response.Result {
		out = append(out, domain.Candidate{
			RecordID:    hit.ID,
			VectorScore: hit.Score,
		})
	}
	return out, nil
}

func filterConditions(filter domain.SearchFilter) []map[string]any {
	var must []map[string]any
	match := func(key, value string) {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	if filter.Feature != "" {
		match("feature", filter.Feature)
	}
	if filter.Priority != "" {
		match("priority", string(filter.Priority))
	}
	if filter.Platform != "" {
		match("platform", filter.Platform)
	}
	for _, tag := range filter.Tags {
		match("tags", tag)
	}
	return must
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the collection already exists, which is fine
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("qdrant create collection status: %s", resp.Status)
	}

	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant status: %s", resp.Status)
	}
	if out == nil {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read qdrant response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}
