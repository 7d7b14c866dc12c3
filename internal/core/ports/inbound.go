package ports

import (
	"context"
	"io"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

// BatchIngestor is the inbound contract for test-case file uploads.
type BatchIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Batch, error)
}

// BatchProcessor is the inbound contract for asynchronous batch processing.
type BatchProcessor interface {
	ProcessByID(ctx context.Context, batchID string) error
}

// SearchService is the inbound contract for ranked test-case search.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]domain.ScoredResult, error)
}

// SearchRequest carries one search invocation's parameters.
type SearchRequest struct {
	Question string
	TopK     int
	Variant  domain.RankVariant
	Filter   domain.SearchFilter
}
